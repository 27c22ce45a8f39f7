package statement

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/shop-ledger/ledger"
)

var arabicOnes = [...]string{"", "واحد", "اثنان", "ثلاثة", "أربعة", "خمسة", "ستة", "سبعة", "ثمانية", "تسعة"}

var arabicTens = [...]string{"", "", "عشرون", "ثلاثون", "أربعون", "خمسون", "ستون", "سبعون", "ثمانون", "تسعون"}

var arabicTeens = [...]string{
	"عشرة", "أحد عشر", "اثنا عشر", "ثلاثة عشر", "أربعة عشر",
	"خمسة عشر", "ستة عشر", "سبعة عشر", "ثمانية عشر", "تسعة عشر",
}

var arabicHundreds = [...]string{
	"", "مائة", "مئتان", "ثلاثمائة", "أربعمائة", "خمسمائة", "ستمائة", "سبعمائة", "ثمانمائة", "تسعمائة",
}

// scale is one power-of-thousand word with its dual and 3-10 plural forms.
type scale struct {
	value  int64
	single string
	dual   string
	plural string
}

var arabicScales = []scale{
	{value: 1_000_000_000, single: "مليار", dual: "ملياران", plural: "مليارات"},
	{value: 1_000_000, single: "مليون", dual: "مليونان", plural: "ملايين"},
	{value: 1_000, single: "ألف", dual: "ألفان", plural: "آلاف"},
}

// IntegerToArabic spells a non-negative integer in Arabic words.
// Negative input is spelled by magnitude.
func IntegerToArabic(n int64) string {
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return "صفر"
	}

	var parts []string
	for _, sc := range arabicScales {
		count := n / sc.value
		n %= sc.value
		if count == 0 {
			continue
		}
		switch {
		case count == 1:
			parts = append(parts, sc.single)
		case count == 2:
			parts = append(parts, sc.dual)
		case count <= 10:
			parts = append(parts, hundredsToArabic(count)+" "+sc.plural)
		case count < 1000:
			parts = append(parts, hundredsToArabic(count)+" "+sc.single)
		default:
			parts = append(parts, IntegerToArabic(count)+" "+sc.single)
		}
	}
	if n > 0 {
		parts = append(parts, hundredsToArabic(n))
	}
	return strings.Join(parts, " و")
}

// hundredsToArabic spells 1..999. Units come before tens, as read aloud.
func hundredsToArabic(n int64) string {
	var parts []string
	if h := n / 100; h > 0 {
		parts = append(parts, arabicHundreds[h])
	}
	switch r := n % 100; {
	case r == 0:
	case r < 10:
		parts = append(parts, arabicOnes[r])
	case r < 20:
		parts = append(parts, arabicTeens[r-10])
	default:
		if one := r % 10; one > 0 {
			parts = append(parts, arabicOnes[one])
		}
		parts = append(parts, arabicTens[r/10])
	}
	return strings.Join(parts, " و")
}

// AmountInWords spells the whole part of amount followed by the Arabic
// currency name, e.g. "مائة دولار أمريكي لا غير". Fractions are dropped.
func AmountInWords(amount decimal.Decimal, currency ledger.Currency) string {
	return IntegerToArabic(amount.Abs().Truncate(0).IntPart()) + " " + currency.Name(true) + " لا غير"
}
