/*
Package statement renders customer statements and movement receipts.

PURPOSE:
  The formatter sits after the ledger engine. It takes a computed
  ledger.CustomerView plus the owner's branding and produces printable
  documents. It never changes a balance and never queries a store.

FILES:
  labels.go    localized labels (x/text catalog), Arabic month names
  words.go     amount in Arabic words
  document.go  Statement and Receipt models built from engine output
  render.go    html/template rendering with embedded templates
*/
package statement

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Label keys. The English text doubles as the key.
const (
	LabelStatement      = "Account statement"
	LabelReceipt        = "Receipt"
	LabelCustomer       = "Customer"
	LabelAccountNumber  = "Account number"
	LabelDate           = "Date"
	LabelNumber         = "No."
	LabelNote           = "Note"
	LabelIncoming       = "Incoming"
	LabelOutgoing       = "Outgoing"
	LabelBalance        = "Balance"
	LabelForThem        = "For them"
	LabelForUs          = "For us"
	LabelCurrency       = "Currency"
	LabelAmount         = "Amount"
	LabelCommission     = "Commission"
	LabelNet            = "Net amount"
	LabelInWords        = "Amount in words"
	LabelCurrent        = "Current balances"
	LabelClosing        = "Closing balance"
	LabelTotals         = "Totals"
	LabelOpening        = "Opening balance"
	LabelPeriod         = "Period"
	LabelNoMovements    = "No movements"
	LabelNoNotes        = "No notes"
	LabelSender         = "Sender"
	LabelBeneficiary    = "Beneficiary"
	LabelRecipient      = "Commission recipient"
	LabelReceiveFrom    = "Received from customer"
	LabelDeliverTo      = "Delivered to customer"
	LabelTransfer       = "Internal transfer between customers"
	LabelCommissionLine = "Commission income"
	LabelNoticeIn       = "We confirm that we received from you the amount below"
	LabelNoticeOut      = "We confirm that we delivered to you the amount below"
	LabelNoticeTransfer = "We confirm the transfer of the amount below"
	LabelGenerated      = "Generated"
	LabelDefaultShop    = "Accounting app"
)

var arabicLabels = map[string]string{
	LabelStatement:      "كشف حساب",
	LabelReceipt:        "سند",
	LabelCustomer:       "العميل",
	LabelAccountNumber:  "رقم الحساب",
	LabelDate:           "التاريخ",
	LabelNumber:         "رقم",
	LabelNote:           "ملاحظات",
	LabelIncoming:       "له",
	LabelOutgoing:       "عليه",
	LabelBalance:        "الرصيد",
	LabelForThem:        "لكم",
	LabelForUs:          "عليكم",
	LabelCurrency:       "العملة",
	LabelAmount:         "المبلغ",
	LabelCommission:     "العمولة",
	LabelNet:            "الصافي",
	LabelInWords:        "المبلغ كتابة",
	LabelCurrent:        "الأرصدة الحالية",
	LabelClosing:        "الرصيد الختامي",
	LabelTotals:         "الإجماليات",
	LabelOpening:        "الرصيد الافتتاحي",
	LabelPeriod:         "الفترة",
	LabelNoMovements:    "لا توجد حركات",
	LabelNoNotes:        "لا توجد ملاحظات",
	LabelSender:         "المرسل",
	LabelBeneficiary:    "المستفيد",
	LabelRecipient:      "مستلم العمولة",
	LabelReceiveFrom:    "استلام من العميل",
	LabelDeliverTo:      "تسليم للعميل",
	LabelTransfer:       "تحويل داخلي بين عميلين",
	LabelCommissionLine: "عمولة",
	LabelNoticeIn:       "نود إشعاركم أننا استلمنا منكم المبلغ المذكور حسب التفاصيل التالية",
	LabelNoticeOut:      "نود إشعاركم أننا سلمنا لكم المبلغ المذكور حسب التفاصيل التالية",
	LabelNoticeTransfer: "نود إشعاركم بتحويل المبلغ المذكور حسب التفاصيل التالية",
	LabelGenerated:      "تاريخ الإصدار",
	LabelDefaultShop:    "التطبيق المحاسبي",
}

var arabicMonths = [...]string{
	"يناير", "فبراير", "مارس", "أبريل", "مايو", "يونيو",
	"يوليو", "أغسطس", "سبتمبر", "أكتوبر", "نوفمبر", "ديسمبر",
}

var labelCatalog = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, ar := range arabicLabels {
		if err := b.SetString(language.Arabic, key, ar); err != nil {
			panic(err)
		}
		if err := b.SetString(language.English, key, key); err != nil {
			panic(err)
		}
	}
	return b
}

// Labels looks up document labels in one language.
type Labels struct {
	tag     language.Tag
	printer *message.Printer
}

// NewLabels matches lang ("ar", "en", "ar-YE", ...) against the supported
// languages. Unknown languages get Arabic.
func NewLabels(lang string) Labels {
	tag := language.Arabic
	if lang != "" {
		matcher := language.NewMatcher([]language.Tag{language.Arabic, language.English})
		if parsed, err := language.Parse(lang); err == nil {
			_, idx, _ := matcher.Match(parsed)
			tag = []language.Tag{language.Arabic, language.English}[idx]
		}
	}
	return Labels{tag: tag, printer: message.NewPrinter(tag, message.Catalog(labelCatalog))}
}

func (l Labels) T(key string) string {
	return l.printer.Sprintf(message.Key(key, key))
}

func (l Labels) Arabic() bool { return l.tag == language.Arabic }

func (l Labels) Lang() string { return l.tag.String() }

// Dir is the HTML text direction.
func (l Labels) Dir() string {
	if l.Arabic() {
		return "rtl"
	}
	return "ltr"
}

func (l Labels) Month(m time.Month) string {
	if l.Arabic() && m >= time.January && m <= time.December {
		return arabicMonths[m-1]
	}
	return m.String()
}
