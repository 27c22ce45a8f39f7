package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListScenarios(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)

	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.ElementsMatch(t, []string{"remittance", "multi-currency", "empty-shop"}, ids)
	for id := range scenarioLoaders {
		assert.Contains(t, ids, id)
	}
}

func TestLoadScenario_Remittance(t *testing.T) {
	// GIVEN: leftovers from an earlier session
	env := newTestEnv(t)
	env.addLocal("قديم")

	// WHEN: loading the remittance scenario
	rec := env.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "remittance"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: only Ahmed and the profit-and-loss account exist
	list := decode[[]CustomerSummaryDTO](t, env.do(http.MethodGet, "/api/customers", nil))
	require.Len(t, list, 2)

	var ahmed CustomerSummaryDTO
	for _, c := range list {
		if !c.Customer.IsProfitLoss {
			ahmed = c
		}
	}
	assert.Equal(t, "أحمد علي", ahmed.Customer.Name)
	assert.Equal(t, "L-0001", ahmed.Customer.AccountNumber)
	require.Len(t, ahmed.Balances, 1, "the YER pair nets to zero")
	assert.Equal(t, "USD", ahmed.Balances[0].Currency)
	assert.True(t, dec("60").Equal(ahmed.Balances[0].Balance))

	pl := decode[CustomerViewDTO](t, env.do(http.MethodGet, "/api/profit-loss", nil))
	require.Len(t, pl.Balances, 1)
	assert.True(t, dec("15").Equal(pl.Balances[0].Balance))

	// AND: it is reported as current
	rec = env.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "remittance", decode[ScenarioDTO](t, rec).ID)
}

func TestLoadScenario_MultiCurrency(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "multi-currency"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[OwnerReportDTO](t, env.do(http.MethodGet, "/api/reports/summary", nil))
	assert.Equal(t, 3, report.CustomerCount)

	currencies := make(map[string]bool)
	for _, b := range report.Balances {
		currencies[b.Currency] = true
	}
	for _, c := range []string{"USD", "SAR", "EGP", "EUR", "AED", "QAR", "YER"} {
		assert.True(t, currencies[c], c)
	}

	// Commission was taken in SAR, EUR and USD.
	assert.Len(t, report.Profit, 3)
}

func TestLoadScenario_EmptyShopAndUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.addLocal("أحمد")

	rec := env.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "empty-shop"})
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]CustomerSummaryDTO](t, env.do(http.MethodGet, "/api/customers", nil))
	require.Len(t, list, 1)
	assert.True(t, list[0].Customer.IsProfitLoss)

	rec = env.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "scenario_not_found", decode[ErrorResponse](t, rec).Code)

	// A failed load keeps the previous scenario current.
	assert.Equal(t, "empty-shop", decode[ScenarioDTO](t, env.do(http.MethodGet, "/api/scenarios/current", nil)).ID)
}
