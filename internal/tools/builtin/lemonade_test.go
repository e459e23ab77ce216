package builtin

import (
	"testing"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLemonade() *Lemonade {
	return NewLemonade(&ast.ToolRef{Name: "lemonade", Type: TypeLemonade})
}

func TestLemonadeCheckStatus(t *testing.T) {
	tool := newTestLemonade()
	env := map[string]interface{}{}

	data := resultData(t, tool.Invoke("check_status", nil, env))
	assert.Equal(t, 50.0, data["cash"])
	assert.Equal(t, 2.0, data["price_per_cup"])
	assert.Equal(t, "sunny", data["weather"])
	assert.Equal(t, "morning", data["time"])
	assert.Equal(t, true, data["is_open"])
	assert.NotContains(t, data, "warnings")

	inventory := data["inventory"].(map[string]interface{})
	assert.Equal(t, 0, inventory["cups_ready"])
	assert.Equal(t, 20, inventory["lemons"])
	assert.Equal(t, 50, inventory["ice"])

	customers := data["customers"].(map[string]interface{})
	assert.Equal(t, 0, customers["waiting"])
	assert.Equal(t, 3, customers["patience_remaining"])

	assert.Equal(t, 50.0, env["cash_balance"])
	stats := env["lemonade_stats"].(map[string]interface{})
	assert.Equal(t, 50.0, stats["reputation"])
	assert.Equal(t, 0, stats["customers_served"])
}

func TestLemonadeMakeLemonade(t *testing.T) {
	t.Run("Two Batches", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("make_lemonade", map[string]interface{}{"batches": 2}, map[string]interface{}{}))

		assert.Equal(t, 2, data["batches_made"])
		assert.Equal(t, 8, data["cups_made"])
		assert.Equal(t, 8, data["cups_ready"])

		remaining := data["supplies_remaining"].(map[string]interface{})
		assert.Equal(t, 16, remaining["lemons"])
		assert.Equal(t, 16, remaining["sugar"])
		assert.Equal(t, 22, remaining["cups_empty"])
	})

	t.Run("Not Enough Lemons", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("make_lemonade", map[string]interface{}{"batches": 11}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "Not enough lemons! Need 22, have 20", res.Error)
	})

	t.Run("Not Enough Cups", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("make_lemonade", map[string]interface{}{"batches": 10}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "Not enough empty cups! Need 40, have 30", res.Error)
	})

	t.Run("Zero Batches", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("make_lemonade", map[string]interface{}{"batches": 0}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "must make at least 1 batch", res.Error)
	})

	t.Run("Non Numeric Batches", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("make_lemonade", map[string]interface{}{"batches": "lots"}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "batches must be a number", res.Error)
	})
}

func TestLemonadeServeCustomers(t *testing.T) {
	t.Run("Nobody Waiting", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("serve_customers", nil, map[string]interface{}{}))
		assert.Equal(t, "No customers waiting", data["message"])
		assert.Equal(t, 0, data["served"])
	})

	t.Run("Serves Influencer", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}

		resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "influencer"}, env))
		resultData(t, tool.Invoke("make_lemonade", nil, env))
		data := resultData(t, tool.Invoke("serve_customers", nil, env))

		assert.Equal(t, 1, data["served"])
		assert.Equal(t, 2.0, data["revenue"])
		assert.Equal(t, 52.0, data["cash"])
		assert.Equal(t, 3, data["cups_remaining"])
		assert.Equal(t, 0, data["customers_still_waiting"])
		assert.Contains(t, data["notes"], "An influencer loved your lemonade! +10 reputation!")

		stats := env["lemonade_stats"].(map[string]interface{})
		assert.Equal(t, 60.5, stats["reputation"])
		assert.Equal(t, 1, stats["customers_served"])
	})

	t.Run("No Lemonade Ready", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}

		resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "influencer"}, env))
		res := tool.Invoke("serve_customers", nil, env)
		require.False(t, res.Success)
		assert.Equal(t, "No lemonade to serve! 1 customers left angry. Reputation dropped!", res.Error)

		stats := env["lemonade_stats"].(map[string]interface{})
		assert.Equal(t, 1, stats["customers_lost"])
		assert.Equal(t, 48.0, stats["reputation"])
	})

	t.Run("Stand Closed", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}

		resultData(t, tool.Invoke("close_stand", nil, env))
		res := tool.Invoke("serve_customers", nil, env)
		require.False(t, res.Success)
		assert.Equal(t, "Stand is closed! Open it first.", res.Error)
	})
}

func TestLemonadeBuySupplies(t *testing.T) {
	t.Run("Lemons And Sugar", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("buy_supplies", map[string]interface{}{"lemons": 10, "sugar": 4}, map[string]interface{}{}))

		assert.Equal(t, 6.0, data["total_cost"])
		assert.Equal(t, 44.0, data["cash_remaining"])
		assert.Equal(t, map[string]interface{}{"lemons": 10, "sugar": 4}, data["purchased"])

		inventory := data["inventory"].(map[string]interface{})
		assert.Equal(t, 30, inventory["lemons"])
		assert.Equal(t, 24, inventory["sugar"])
	})

	t.Run("Ice Sold By The Bag", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("buy_supplies", map[string]interface{}{"ice": 25}, map[string]interface{}{}))

		// Two full bags of 10; the loose 5 ride along free.
		assert.Equal(t, 2.0, data["total_cost"])
		inventory := data["inventory"].(map[string]interface{})
		assert.Equal(t, 75, inventory["ice"])
	})

	t.Run("Negative Amount", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("buy_supplies", map[string]interface{}{"lemons": -1}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "Cannot buy negative lemons", res.Error)
	})

	t.Run("Nothing Requested", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("buy_supplies", map[string]interface{}{"lemons": 0}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Contains(t, res.Error, "Specify supplies to buy")
	})

	t.Run("Not Enough Cash", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("buy_supplies", map[string]interface{}{"cups_empty": 1000}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "Not enough cash! Need $150.00, have $50.00", res.Error)
	})
}

func TestLemonadeSetPrice(t *testing.T) {
	t.Run("Changes Price", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("set_price", map[string]interface{}{"price": 3.5}, map[string]interface{}{}))
		assert.Equal(t, "Price changed from $2.00 to $3.50", data["message"])
		assert.Equal(t, 3.5, data["new_price"])
	})

	t.Run("High Price Warning", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}
		data := resultData(t, tool.Invoke("set_price", map[string]interface{}{"price": 12}, env))

		assert.Equal(t, "Price changed from $2.00 to $12.00 (Warning: High prices may hurt reputation)", data["message"])
		stats := env["lemonade_stats"].(map[string]interface{})
		assert.Equal(t, 45.0, stats["reputation"])
	})

	t.Run("Free Lemonade", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("set_price", map[string]interface{}{"price": 0}, map[string]interface{}{}))
		assert.Contains(t, data["message"], "Free lemonade!")
	})

	t.Run("Very Low Price", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("set_price", map[string]interface{}{"price": 0.25}, map[string]interface{}{}))
		assert.Contains(t, data["message"], "Very low price")
	})

	t.Run("Invalid Prices", func(t *testing.T) {
		tool := newTestLemonade()

		res := tool.Invoke("set_price", map[string]interface{}{"price": -1}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "price cannot be negative", res.Error)

		res = tool.Invoke("set_price", map[string]interface{}{"price": 101}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "price cannot exceed $100 (be reasonable!)", res.Error)

		res = tool.Invoke("set_price", nil, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "price is required", res.Error)

		res = tool.Invoke("set_price", map[string]interface{}{"price": "cheap"}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "price must be a number", res.Error)
	})
}

func TestLemonadeEnvironmentSync(t *testing.T) {
	tool := newTestLemonade()
	env := map[string]interface{}{}

	res := tool.Invoke("juggle", nil, env)
	require.False(t, res.Success)
	assert.NotContains(t, env, "cash_balance")

	resultData(t, tool.Invoke("check_status", nil, env))
	assert.Contains(t, env, "cash_balance")
	assert.Contains(t, env, "lemonade_stats")
}

func TestLemonadeAdvanceTime(t *testing.T) {
	t.Run("Ice Melts While Closed", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}
		resultData(t, tool.Invoke("close_stand", nil, env))

		data := resultData(t, tool.Invoke("advance_time", nil, env))
		assert.Equal(t, 2, data["turn"])
		assert.Equal(t, "morning", data["time"])
		assert.Equal(t, 0, data["new_customers"])
		assert.Equal(t, 5, data["ice_melted"])

		data = resultData(t, tool.Invoke("advance_time", nil, env))
		assert.Equal(t, 3, data["turn"])
		assert.Equal(t, "midday", data["time"])
		assert.Equal(t, 4, data["ice_melted"])
	})

	t.Run("Customers Run Out Of Patience", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}
		resultData(t, tool.Invoke("close_stand", nil, env))

		rush := resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "rush_hour"}, env))
		surge := rush["effects"].(map[string]interface{})["new_customers"].(int)
		require.GreaterOrEqual(t, surge, 5)

		var data map[string]interface{}
		for i := 0; i < 3; i++ {
			data = resultData(t, tool.Invoke("advance_time", nil, env))
		}

		queue := data["queue"].(map[string]interface{})
		assert.Equal(t, 0, queue["waiting"])
		assert.Equal(t, 3, queue["patience_remaining"])

		stats := env["lemonade_stats"].(map[string]interface{})
		assert.Equal(t, surge, stats["customers_lost"])
		assert.Equal(t, 50.0-float64(surge), stats["reputation"])
	})

	t.Run("Day Rolls Over", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}
		resultData(t, tool.Invoke("close_stand", nil, env))
		resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "perfect_weather"}, env))

		var data map[string]interface{}
		for i := 0; i < 12; i++ {
			data = resultData(t, tool.Invoke("advance_time", nil, env))
		}

		assert.Equal(t, 13, data["turn"])
		assert.Equal(t, 2, data["day"])
		assert.Equal(t, "morning", data["time"])

		status := resultData(t, tool.Invoke("check_status", nil, env))
		assert.Empty(t, status["events_today"])
	})
}

func TestLemonadeHealthInspector(t *testing.T) {
	t.Run("Passes Clean Stand", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}

		data := resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "health_inspector"}, env))
		assert.Equal(t, "HEALTH INSPECTOR - PASSED", data["event"])

		stats := env["lemonade_stats"].(map[string]interface{})
		assert.Equal(t, 55.0, stats["reputation"])
	})

	t.Run("Fines And Closes On Violations", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}

		resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "ice_melted"}, env))
		data := resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "health_inspector"}, env))

		assert.Equal(t, "HEALTH INSPECTOR - FAILED", data["event"])
		assert.Equal(t, "Health inspector found violations! Fined $20.00. Stand closed temporarily.", data["message"])
		assert.Equal(t, []interface{}{"Insufficient ice storage"}, data["violations"])
		assert.Equal(t, 30.0, env["cash_balance"])

		res := tool.Invoke("serve_customers", nil, env)
		require.False(t, res.Success)
		assert.Equal(t, "Stand is closed! Open it first.", res.Error)

		reopened := resultData(t, tool.Invoke("open_stand", nil, env))
		assert.Equal(t, "Stand is now open for business!", reopened["message"])
	})
}

func TestLemonadeOpenClose(t *testing.T) {
	tool := newTestLemonade()
	env := map[string]interface{}{}

	data := resultData(t, tool.Invoke("close_stand", nil, env))
	assert.Equal(t, "Stand closed for the day", data["message"])
	assert.Equal(t, 0, data["customers_turned_away"])

	res := tool.Invoke("close_stand", nil, env)
	require.False(t, res.Success)
	assert.Equal(t, "Stand is already closed", res.Error)

	resultData(t, tool.Invoke("open_stand", nil, env))
	res = tool.Invoke("open_stand", nil, env)
	require.False(t, res.Success)
	assert.Equal(t, "Stand is already open", res.Error)
}

func TestLemonadeAdjustRecipe(t *testing.T) {
	t.Run("Too Sour", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("adjust_recipe", map[string]interface{}{
			"lemons_per_batch": 5, "sugar_per_batch": 1,
		}, map[string]interface{}{}))
		assert.Equal(t, "too sour", data["quality_assessment"])
	})

	t.Run("Balanced", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("adjust_recipe", map[string]interface{}{
			"lemons_per_batch": 1, "sugar_per_batch": 4,
		}, map[string]interface{}{}))
		assert.Equal(t, "balanced", data["quality_assessment"])
	})

	t.Run("No Changes Reports Current", func(t *testing.T) {
		tool := newTestLemonade()
		data := resultData(t, tool.Invoke("adjust_recipe", nil, map[string]interface{}{}))
		recipe := data["current_recipe"].(map[string]interface{})
		assert.Equal(t, 2, recipe["lemons_per_batch"])
		assert.Equal(t, 2, recipe["sugar_per_batch"])
		assert.Equal(t, 4, recipe["ice_per_cup"])
		assert.Equal(t, 4, recipe["cups_per_batch"])
	})

	t.Run("Out Of Range", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("adjust_recipe", map[string]interface{}{"sugar_per_batch": 11}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "sugar_per_batch must be 0-10", res.Error)

		res = tool.Invoke("adjust_recipe", map[string]interface{}{"lemons_per_batch": 0}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, "lemons_per_batch must be 1-10", res.Error)
	})
}

func TestLemonadeCheckInventory(t *testing.T) {
	tool := newTestLemonade()
	data := resultData(t, tool.Invoke("check_inventory", nil, map[string]interface{}{}))

	// Empty cups are the bottleneck: 30 cups / 4 per batch.
	assert.Equal(t, 7, data["batches_can_make"])
	assert.Equal(t, 4, data["cups_per_batch"])

	recipe := data["recipe"].(map[string]interface{})
	assert.Equal(t, 2, recipe["lemons_per_batch"])

	costs := data["supply_costs"].(map[string]interface{})
	assert.Equal(t, 0.5, costs["lemons"])
}

func TestLemonadeCheckCustomers(t *testing.T) {
	tool := newTestLemonade()
	data := resultData(t, tool.Invoke("check_customers", nil, map[string]interface{}{}))

	assert.Equal(t, 0, data["waiting"])
	forecast := data["demand_forecast"].(map[string]interface{})
	assert.Equal(t, "1.5x (sunny)", forecast["weather_effect"])
	assert.Equal(t, "0.6x (morning)", forecast["time_effect"])
	assert.Equal(t, "1.3x ($2)", forecast["price_effect"])
	assert.Equal(t, "1.0x (50/100)", forecast["reputation_effect"])
	assert.Equal(t, 1.2, forecast["combined_multiplier"])
}

func TestLemonadeEvents(t *testing.T) {
	t.Run("Ice Disaster", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}

		data := resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "ice_melted"}, env))
		assert.Equal(t, "Oh no! Your ice cooler broke and all 50 ice cubes melted!", data["message"])
		assert.Equal(t, 50, data["effects"].(map[string]interface{})["ice_lost"])

		status := resultData(t, tool.Invoke("check_status", nil, env))
		assert.Equal(t, []string{"ice_melted"}, status["events_today"])
	})

	t.Run("Tip Jar", func(t *testing.T) {
		tool := newTestLemonade()
		env := map[string]interface{}{}

		data := resultData(t, tool.Invoke("trigger_event", map[string]interface{}{"event": "tip_jar"}, env))
		effects := data["effects"].(map[string]interface{})
		newCash := effects["new_cash"].(float64)

		assert.GreaterOrEqual(t, newCash, 55.0)
		assert.LessOrEqual(t, newCash, 70.0)
		assert.InDelta(t, newCash, env["cash_balance"].(float64), 0.001)
	})

	t.Run("Unknown Event", func(t *testing.T) {
		tool := newTestLemonade()
		res := tool.Invoke("trigger_event", map[string]interface{}{"event": "ufo"}, map[string]interface{}{})
		require.False(t, res.Success)
		assert.Contains(t, res.Error, "Unknown event: ufo")
		assert.Contains(t, res.Error, "Available:")
	})
}

func TestLemonadePublishedActions(t *testing.T) {
	tool := newTestLemonade()
	names := make([]string, 0)
	for _, action := range tool.Actions() {
		names = append(names, action.Name)
	}

	assert.Len(t, names, 10)
	assert.NotContains(t, names, "trigger_event")
	assert.NotContains(t, names, "advance_time")
	assert.Contains(t, names, "set_price")
	assert.Contains(t, names, "buy_supplies")
}
