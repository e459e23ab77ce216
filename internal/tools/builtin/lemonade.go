package builtin

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/schema"
	"github.com/dojoai/dojo/internal/tools"
)

// Per-unit restocking prices. Ice is sold in bags of 10.
var supplyCosts = map[string]float64{
	"lemons":     0.50,
	"sugar":      0.25,
	"ice":        0.10,
	"cups_empty": 0.15,
}

var supplyOrder = []string{"lemons", "sugar", "ice", "cups_empty"}

var weatherDemand = map[string]float64{
	"hot":     2.5,
	"sunny":   1.5,
	"perfect": 2.0,
	"cloudy":  0.8,
	"rainy":   0.3,
}

// Fraction of ice lost per turn.
var weatherIceMelt = map[string]float64{
	"hot":     0.3,
	"sunny":   0.1,
	"perfect": 0.05,
	"cloudy":  0.02,
	"rainy":   0.0,
}

var timeDemand = map[string]float64{
	"morning":   0.6,
	"midday":    1.5,
	"afternoon": 1.0,
	"evening":   0.4,
}

var timeOrder = []string{"morning", "midday", "afternoon", "evening"}

var lemonadeEvents = []string{
	"heatwave", "rain", "perfect_weather",
	"rush_hour", "slow_period", "influencer", "food_critic", "kid_birthday_party",
	"health_inspector", "competitor", "supply_truck", "ice_melted", "spill",
	"tip_jar", "bulk_order",
}

func mult(table map[string]float64, key string, fallback float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}

type lemonadeSupplies struct {
	cups      int
	lemons    int
	sugar     int
	ice       int
	cupsEmpty int
}

func (s *lemonadeSupplies) dict() map[string]interface{} {
	return map[string]interface{}{
		"cups_ready": s.cups,
		"lemons":     s.lemons,
		"sugar":      s.sugar,
		"ice":        s.ice,
		"cups_empty": s.cupsEmpty,
	}
}

type lemonadeQueue struct {
	count    int
	patience int
	vip      bool
	vipType  string
}

func (q *lemonadeQueue) dict() map[string]interface{} {
	d := map[string]interface{}{
		"waiting":            q.count,
		"patience_remaining": q.patience,
	}
	if q.vip {
		d["special_customer"] = q.vipType
	}
	return d
}

type lemonadeStats struct {
	served    int
	lost      int
	cupsSold  int
	peakQueue int

	revenue    float64
	costs      float64
	reputation float64
}

func (st *lemonadeStats) dict() map[string]interface{} {
	return map[string]interface{}{
		"customers_served": st.served,
		"customers_lost":   st.lost,
		"cups_sold":        st.cupsSold,
		"revenue":          round2(st.revenue),
		"costs":            round2(st.costs),
		"profit":           round2(st.revenue - st.costs),
		"reputation":       round1(st.reputation),
		"peak_queue":       st.peakQueue,
	}
}

// Lemonade is a mock lemonade stand. Demand is driven by weather,
// price, reputation and time of day; ice melts, customers run out of
// patience, and injected events disrupt everything. Every action syncs
// cash and running stats into the environment for evaluation.
type Lemonade struct {
	base
	rng *rand.Rand

	cash        float64
	pricePerCup float64
	weather     string
	timeOfDay   string
	turn        int
	day         int
	isOpen      bool
	eventsToday []string
	difficulty  int

	recipeLemons int
	recipeSugar  int
	recipeIce    int
	cupsPerBatch int

	supplies lemonadeSupplies
	queue    lemonadeQueue
	stats    lemonadeStats
}

// NewLemonade builds a stand from config. starting_cash, starting_price,
// initial_supplies, difficulty and seed are all optional.
func NewLemonade(ref *ast.ToolRef) *Lemonade {
	t := &Lemonade{base: newBase(ref, "Mock lemonade stand business simulation")}
	t.rng = t.newRNG()

	t.cash = t.cfgFloat("starting_cash", 50.0)
	t.pricePerCup = t.cfgFloat("starting_price", 2.0)
	t.weather = "sunny"
	t.timeOfDay = "morning"
	t.turn = 1
	t.day = 1
	t.isOpen = true
	t.difficulty = t.cfgInt("difficulty", 5)

	t.recipeLemons = 2
	t.recipeSugar = 2
	t.recipeIce = 4
	t.cupsPerBatch = 4

	initial, _ := t.cfgMap("initial_supplies")
	t.supplies = lemonadeSupplies{
		cups:      mapInt(initial, "cups_ready", 0),
		lemons:    mapInt(initial, "lemons", 20),
		sugar:     mapInt(initial, "sugar", 20),
		ice:       mapInt(initial, "ice", 50),
		cupsEmpty: mapInt(initial, "cups_empty", 30),
	}

	t.queue = lemonadeQueue{patience: 3}
	t.stats = lemonadeStats{reputation: 50.0}

	return t
}

func (t *Lemonade) Invoke(action string, args map[string]interface{}, envState map[string]interface{}) tools.Result {
	var result tools.Result

	switch action {
	case "check_status":
		result = t.checkStatus()
	case "check_inventory":
		result = t.checkInventory()
	case "check_customers":
		result = t.checkCustomers()
	case "set_price":
		result = t.setPrice(args)
	case "make_lemonade":
		result = t.makeLemonade(args)
	case "serve_customers":
		result = t.serveCustomers(args)
	case "buy_supplies":
		result = t.buySupplies(args)
	case "adjust_recipe":
		result = t.adjustRecipe(args)
	case "close_stand":
		result = t.closeStand()
	case "open_stand":
		result = t.openStand()
	case "trigger_event":
		result = t.triggerEvent(args)
	case "advance_time":
		result = t.advanceTime()
	default:
		return tools.Errorf("Unknown action: %s", action)
	}

	// Evaluations read the stand's finances from the environment.
	envState["cash_balance"] = t.cash
	envState["lemonade_stats"] = t.stats.dict()

	return result
}

func (t *Lemonade) adjustReputation(delta float64) {
	rep := t.stats.reputation + delta
	if rep < 0 {
		rep = 0
	}
	if rep > 100 {
		rep = 100
	}
	t.stats.reputation = rep
}

func (t *Lemonade) checkStatus() tools.Result {
	events := make([]string, len(t.eventsToday))
	copy(events, t.eventsToday)

	status := map[string]interface{}{
		"cash":          round2(t.cash),
		"price_per_cup": t.pricePerCup,
		"weather":       t.weather,
		"time":          t.timeOfDay,
		"day":           t.day,
		"turn":          t.turn,
		"is_open":       t.isOpen,
		"inventory":     t.supplies.dict(),
		"customers":     t.queue.dict(),
		"stats":         t.stats.dict(),
		"events_today":  events,
	}

	var warnings []interface{}
	if t.supplies.cups == 0 && t.queue.count > 0 {
		warnings = append(warnings, "No lemonade ready! Customers are waiting!")
	}
	if t.supplies.ice < 10 {
		warnings = append(warnings, "Ice is running low!")
	}
	if t.weather == "hot" && t.supplies.ice > 0 {
		warnings = append(warnings, "Hot weather - ice is melting fast!")
	}
	if t.queue.patience <= 1 {
		warnings = append(warnings, "Customers are getting impatient!")
	}
	if len(warnings) > 0 {
		status["warnings"] = warnings
	}

	return tools.OK(status)
}

func (t *Lemonade) checkInventory() tools.Result {
	capLemons, capSugar, capCups := 999, 999, 999
	if t.recipeLemons > 0 {
		capLemons = t.supplies.lemons / t.recipeLemons
	}
	if t.recipeSugar > 0 {
		capSugar = t.supplies.sugar / t.recipeSugar
	}
	if t.cupsPerBatch > 0 {
		capCups = t.supplies.cupsEmpty / t.cupsPerBatch
	}

	costs := make(map[string]interface{}, len(supplyCosts))
	for k, v := range supplyCosts {
		costs[k] = v
	}

	inventory := t.supplies.dict()
	inventory["batches_can_make"] = min(capLemons, capSugar, capCups)
	inventory["cups_per_batch"] = t.cupsPerBatch
	inventory["recipe"] = map[string]interface{}{
		"lemons_per_batch": t.recipeLemons,
		"sugar_per_batch":  t.recipeSugar,
		"ice_per_cup":      t.recipeIce,
	}
	inventory["supply_costs"] = costs

	return tools.OK(inventory)
}

func (t *Lemonade) checkCustomers() tools.Result {
	weatherMult := mult(weatherDemand, t.weather, 1.0)
	timeMult := mult(timeDemand, t.timeOfDay, 1.0)
	priceMult := math.Max(0.1, 2.0-t.pricePerCup/3.0)
	repMult := t.stats.reputation / 50.0

	info := t.queue.dict()
	info["demand_forecast"] = map[string]interface{}{
		"weather_effect":      fmt.Sprintf("%.1fx (%s)", weatherMult, t.weather),
		"time_effect":         fmt.Sprintf("%.1fx (%s)", timeMult, t.timeOfDay),
		"price_effect":        fmt.Sprintf("%.1fx ($%g)", priceMult, t.pricePerCup),
		"reputation_effect":   fmt.Sprintf("%.1fx (%.0f/100)", repMult, t.stats.reputation),
		"combined_multiplier": round2(weatherMult * timeMult * priceMult * repMult),
	}

	return tools.OK(info)
}

func (t *Lemonade) setPrice(args map[string]interface{}) tools.Result {
	raw, ok := args["price"]
	if !ok || raw == nil {
		return tools.Errorf("price is required")
	}
	price, ok := toFloat(raw)
	if !ok {
		return tools.Errorf("price must be a number")
	}

	if price < 0 {
		return tools.Errorf("price cannot be negative")
	}
	if price > 100 {
		return tools.Errorf("price cannot exceed $100 (be reasonable!)")
	}

	oldPrice := t.pricePerCup
	t.pricePerCup = round2(price)

	message := fmt.Sprintf("Price changed from $%.2f to $%.2f", oldPrice, price)
	switch {
	case price > 10:
		t.adjustReputation(-5)
		message += " (Warning: High prices may hurt reputation)"
	case price < 0.5 && price > 0:
		message += " (Very low price - good for attracting customers!)"
	case price == 0:
		message += " (Free lemonade! Customers will love it, but you won't make money)"
	}

	return tools.OK(map[string]interface{}{"message": message, "new_price": price})
}

func (t *Lemonade) makeLemonade(args map[string]interface{}) tools.Result {
	batches := 1
	if raw, ok := args["batches"]; ok && raw != nil {
		b, ok := toInt(raw)
		if !ok {
			return tools.Errorf("batches must be a number")
		}
		batches = b
	}
	if batches < 1 {
		return tools.Errorf("must make at least 1 batch")
	}

	lemonsNeeded := batches * t.recipeLemons
	sugarNeeded := batches * t.recipeSugar
	cupsNeeded := batches * t.cupsPerBatch

	if t.supplies.lemons < lemonsNeeded {
		return tools.Errorf("Not enough lemons! Need %d, have %d", lemonsNeeded, t.supplies.lemons)
	}
	if t.supplies.sugar < sugarNeeded {
		return tools.Errorf("Not enough sugar! Need %d, have %d", sugarNeeded, t.supplies.sugar)
	}
	if t.supplies.cupsEmpty < cupsNeeded {
		return tools.Errorf("Not enough empty cups! Need %d, have %d", cupsNeeded, t.supplies.cupsEmpty)
	}

	t.supplies.lemons -= lemonsNeeded
	t.supplies.sugar -= sugarNeeded
	t.supplies.cupsEmpty -= cupsNeeded
	cupsMade := batches * t.cupsPerBatch
	t.supplies.cups += cupsMade

	return tools.OK(map[string]interface{}{
		"batches_made":       batches,
		"cups_made":          cupsMade,
		"cups_ready":         t.supplies.cups,
		"supplies_remaining": t.supplies.dict(),
	})
}

func (t *Lemonade) serveCustomers(args map[string]interface{}) tools.Result {
	if !t.isOpen {
		return tools.Errorf("Stand is closed! Open it first.")
	}

	maxServe := intArg(args, "count", t.queue.count)
	if maxServe < 0 {
		maxServe = 0
	}

	if t.queue.count == 0 {
		return tools.OK(map[string]interface{}{"message": "No customers waiting", "served": 0})
	}

	toServe := min(maxServe, t.queue.count, t.supplies.cups)

	if toServe == 0 {
		lost := t.queue.count
		t.queue.count = 0
		t.stats.lost += lost
		t.adjustReputation(float64(-lost * 2))
		return tools.Errorf("No lemonade to serve! %d customers left angry. Reputation dropped!", lost)
	}

	iceNeeded := toServe * t.recipeIce
	iceAvailable := min(iceNeeded, t.supplies.ice)

	revenue := float64(toServe) * t.pricePerCup
	t.supplies.cups -= toServe
	t.supplies.ice -= iceAvailable
	t.queue.count -= toServe

	t.cash += revenue
	t.stats.revenue += revenue
	t.stats.served += toServe
	t.stats.cupsSold += toServe

	var notes []interface{}
	if iceAvailable < iceNeeded {
		t.adjustReputation(-3)
		notes = append(notes, "Some customers got warm lemonade (no ice). Reputation dropped slightly.")
	} else {
		t.adjustReputation(0.5)
	}

	if t.queue.vip && toServe > 0 {
		switch t.queue.vipType {
		case "influencer":
			t.adjustReputation(10)
			notes = append(notes, "An influencer loved your lemonade! +10 reputation!")
		case "food_critic":
			if iceAvailable >= iceNeeded && t.pricePerCup <= 5 {
				t.adjustReputation(15)
				notes = append(notes, "Food critic gave you a great review! +15 reputation!")
			} else {
				t.adjustReputation(-10)
				notes = append(notes, "Food critic was not impressed. -10 reputation.")
			}
		}
		t.queue.vip = false
		t.queue.vipType = ""
	}

	data := map[string]interface{}{
		"served":                  toServe,
		"revenue":                 round2(revenue),
		"cash":                    round2(t.cash),
		"cups_remaining":          t.supplies.cups,
		"customers_still_waiting": t.queue.count,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	return tools.OK(data)
}

func (t *Lemonade) buySupplies(args map[string]interface{}) tools.Result {
	amounts := map[string]int{}
	totalCost := 0.0

	for _, supply := range supplyOrder {
		raw, ok := args[supply]
		if !ok || raw == nil {
			continue
		}
		if f, isNum := toFloat(raw); isNum && f == 0 {
			continue
		}
		amount, isInt := toInt(raw)
		if !isInt {
			return tools.Errorf("Invalid amount for %s", supply)
		}
		if amount < 0 {
			return tools.Errorf("Cannot buy negative %s", supply)
		}
		amounts[supply] = amount
		if supply == "ice" {
			totalCost += float64(amount/10) * supplyCosts[supply] * 10
		} else {
			totalCost += float64(amount) * supplyCosts[supply]
		}
	}

	if len(amounts) == 0 {
		return tools.Errorf("Specify supplies to buy. Available: %s. Costs: lemons $0.50, sugar $0.25, ice $0.10 per 10, cups_empty $0.15", strings.Join(supplyOrder, ", "))
	}

	if totalCost > t.cash {
		return tools.Errorf("Not enough cash! Need $%.2f, have $%.2f", totalCost, t.cash)
	}

	t.cash -= totalCost
	t.stats.costs += totalCost

	t.supplies.lemons += amounts["lemons"]
	t.supplies.sugar += amounts["sugar"]
	t.supplies.ice += amounts["ice"]
	t.supplies.cupsEmpty += amounts["cups_empty"]

	purchased := make(map[string]interface{}, len(amounts))
	for k, v := range amounts {
		purchased[k] = v
	}

	return tools.OK(map[string]interface{}{
		"purchased":      purchased,
		"total_cost":     round2(totalCost),
		"cash_remaining": round2(t.cash),
		"inventory":      t.supplies.dict(),
	})
}

func (t *Lemonade) adjustRecipe(args map[string]interface{}) tools.Result {
	changes := map[string]interface{}{}

	if raw, ok := args["lemons_per_batch"]; ok {
		val, _ := toInt(raw)
		if val < 1 || val > 10 {
			return tools.Errorf("lemons_per_batch must be 1-10")
		}
		t.recipeLemons = val
		changes["lemons_per_batch"] = val
	}
	if raw, ok := args["sugar_per_batch"]; ok {
		val, _ := toInt(raw)
		if val < 0 || val > 10 {
			return tools.Errorf("sugar_per_batch must be 0-10")
		}
		t.recipeSugar = val
		changes["sugar_per_batch"] = val
	}
	if raw, ok := args["ice_per_cup"]; ok {
		val, _ := toInt(raw)
		if val < 0 || val > 10 {
			return tools.Errorf("ice_per_cup must be 0-10")
		}
		t.recipeIce = val
		changes["ice_per_cup"] = val
	}

	if len(changes) == 0 {
		return tools.OK(map[string]interface{}{
			"current_recipe": map[string]interface{}{
				"lemons_per_batch": t.recipeLemons,
				"sugar_per_batch":  t.recipeSugar,
				"ice_per_cup":      t.recipeIce,
				"cups_per_batch":   t.cupsPerBatch,
			},
		})
	}

	quality := float64(t.recipeLemons*2+t.recipeSugar) / 6.0
	assessment := "balanced"
	if quality > 1.2 {
		assessment = "too sour"
	} else if quality < 0.8 {
		assessment = "too sweet"
	}

	return tools.OK(map[string]interface{}{
		"changes":            changes,
		"quality_assessment": assessment,
		"note":               "Recipe affects taste and reputation over time",
	})
}

func (t *Lemonade) closeStand() tools.Result {
	if !t.isOpen {
		return tools.Errorf("Stand is already closed")
	}

	t.isOpen = false
	lost := t.queue.count
	t.queue.count = 0
	t.stats.lost += lost

	return tools.OK(map[string]interface{}{
		"message":               "Stand closed for the day",
		"customers_turned_away": lost,
		"final_stats":           t.stats.dict(),
	})
}

func (t *Lemonade) openStand() tools.Result {
	if t.isOpen {
		return tools.Errorf("Stand is already open")
	}
	t.isOpen = true
	return tools.OK(map[string]interface{}{"message": "Stand is now open for business!"})
}

func (t *Lemonade) triggerEvent(args map[string]interface{}) tools.Result {
	event := stringArg(args, "event")
	if event == "" {
		return tools.Errorf("event type is required")
	}

	var result tools.Result
	switch event {
	case "heatwave":
		result = t.eventHeatwave()
	case "rain":
		result = t.eventRain()
	case "perfect_weather":
		result = t.eventPerfectWeather()
	case "rush_hour":
		result = t.eventRushHour()
	case "slow_period":
		result = t.eventSlowPeriod()
	case "influencer":
		result = t.eventInfluencer()
	case "food_critic":
		result = t.eventFoodCritic()
	case "kid_birthday_party":
		result = t.eventBirthdayParty()
	case "health_inspector":
		result = t.eventHealthInspector()
	case "competitor":
		result = t.eventCompetitor()
	case "supply_truck":
		result = t.eventSupplyTruck()
	case "ice_melted":
		result = t.eventIceMelted()
	case "spill":
		result = t.eventSpill()
	case "tip_jar":
		result = t.eventTipJar()
	case "bulk_order":
		result = t.eventBulkOrder()
	default:
		return tools.Errorf("Unknown event: %s. Available: %s", event, strings.Join(lemonadeEvents, ", "))
	}

	t.eventsToday = append(t.eventsToday, event)
	return result
}

func (t *Lemonade) advanceTime() tools.Result {
	meltRate := mult(weatherIceMelt, t.weather, 0.05)
	iceLost := int(float64(t.supplies.ice) * meltRate)
	t.supplies.ice -= iceLost
	if t.supplies.ice < 0 {
		t.supplies.ice = 0
	}

	newCustomers := 0
	if t.isOpen {
		base := 1 + t.rng.Intn(3+t.difficulty)
		weatherMult := mult(weatherDemand, t.weather, 1.0)
		timeMult := mult(timeDemand, t.timeOfDay, 1.0)
		priceMult := math.Max(0.1, 2.0-t.pricePerCup/3.0)
		repMult := t.stats.reputation / 50.0

		newCustomers = int(float64(base) * weatherMult * timeMult * priceMult * repMult)
		if newCustomers < 0 {
			newCustomers = 0
		}
		t.queue.count += newCustomers
		t.queue.patience = 3

		if t.queue.count > t.stats.peakQueue {
			t.stats.peakQueue = t.queue.count
		}
	}

	if t.queue.count > 0 {
		t.queue.patience--
		if t.queue.patience <= 0 {
			lost := t.queue.count
			t.queue.count = 0
			t.queue.patience = 3
			t.stats.lost += lost
			t.adjustReputation(float64(-lost))
		}
	}

	t.turn++

	// Time of day advances every 3 turns; evening rolls over to a new day.
	if t.turn%3 == 0 {
		idx := 0
		for i, tod := range timeOrder {
			if tod == t.timeOfDay {
				idx = i
				break
			}
		}
		if idx < len(timeOrder)-1 {
			t.timeOfDay = timeOrder[idx+1]
		} else {
			t.day++
			t.timeOfDay = "morning"
			t.eventsToday = nil
		}
	}

	return tools.OK(map[string]interface{}{
		"turn":          t.turn,
		"time":          t.timeOfDay,
		"day":           t.day,
		"new_customers": newCustomers,
		"ice_melted":    iceLost,
		"queue":         t.queue.dict(),
	})
}

func (t *Lemonade) eventHeatwave() tools.Result {
	t.weather = "hot"
	iceLost := int(float64(t.supplies.ice) * 0.2)
	t.supplies.ice -= iceLost

	surge := 3 + t.rng.Intn(6)
	t.queue.count += surge

	return tools.OK(map[string]interface{}{
		"event":   "HEATWAVE",
		"message": fmt.Sprintf("A heatwave hits! Temperature soars to 105°F. %d thirsty customers rush over!", surge),
		"effects": map[string]interface{}{
			"weather":           "hot",
			"new_customers":     surge,
			"ice_melted":        iceLost,
			"demand_multiplier": "2.5x",
		},
		"warning": "Ice will melt faster! Stock up or serve quickly!",
	})
}

func (t *Lemonade) eventRain() tools.Result {
	t.weather = "rainy"
	left := min(t.queue.count, 1+t.rng.Intn(3))
	t.queue.count -= left

	return tools.OK(map[string]interface{}{
		"event":   "RAIN",
		"message": fmt.Sprintf("It starts raining! %d customers leave to find shelter.", left),
		"effects": map[string]interface{}{
			"weather":           "rainy",
			"customers_left":    left,
			"demand_multiplier": "0.3x",
		},
		"silver_lining": "At least your ice won't melt!",
	})
}

func (t *Lemonade) eventPerfectWeather() tools.Result {
	t.weather = "perfect"
	return tools.OK(map[string]interface{}{
		"event":   "PERFECT WEATHER",
		"message": "Beautiful day! 75°F with a light breeze. Perfect lemonade weather!",
		"effects": map[string]interface{}{
			"weather":           "perfect",
			"demand_multiplier": "2.0x",
		},
	})
}

func (t *Lemonade) eventRushHour() tools.Result {
	surge := 5 + t.rng.Intn(8)
	t.queue.count += surge

	return tools.OK(map[string]interface{}{
		"event":   "RUSH HOUR",
		"message": fmt.Sprintf("A crowd of %d people suddenly arrives! They all want lemonade!", surge),
		"effects": map[string]interface{}{"new_customers": surge},
		"warning": "Serve them quickly or they'll leave!",
	})
}

func (t *Lemonade) eventSlowPeriod() tools.Result {
	t.queue.count = 0
	t.queue.patience = 3

	return tools.OK(map[string]interface{}{
		"event":       "SLOW PERIOD",
		"message":     "Business has slowed down. No customers at the moment.",
		"opportunity": "Good time to make more lemonade or restock supplies!",
	})
}

func (t *Lemonade) eventInfluencer() tools.Result {
	t.queue.count++
	t.queue.vip = true
	t.queue.vipType = "influencer"

	return tools.OK(map[string]interface{}{
		"event":   "INFLUENCER SPOTTED",
		"message": "A local influencer with 100k followers just walked up! They're filming!",
		"stakes":  "Serve them well for a reputation boost! Mess up and it goes viral (badly).",
	})
}

func (t *Lemonade) eventFoodCritic() tools.Result {
	t.queue.count++
	t.queue.vip = true
	t.queue.vipType = "food_critic"

	return tools.OK(map[string]interface{}{
		"event":   "FOOD CRITIC",
		"message": "A food critic from the local newspaper is here to review your stand!",
		"stakes":  "Quality and price matter! A good review = major reputation boost.",
	})
}

func (t *Lemonade) eventBirthdayParty() tools.Result {
	partySize := 8 + t.rng.Intn(8)
	t.queue.count += partySize

	return tools.OK(map[string]interface{}{
		"event":       "BIRTHDAY PARTY",
		"message":     fmt.Sprintf("A birthday party of %d kids wants lemonade for everyone!", partySize),
		"opportunity": "Big sale opportunity! Make sure you have enough cups ready.",
	})
}

func (t *Lemonade) eventHealthInspector() tools.Result {
	var issues []interface{}
	if t.supplies.ice < 5 {
		issues = append(issues, "Insufficient ice storage")
	}
	if t.stats.reputation < 30 {
		issues = append(issues, "Multiple customer complaints on file")
	}

	if len(issues) > 0 {
		fine := 20.0 * float64(len(issues))
		t.cash -= fine
		t.stats.costs += fine
		t.isOpen = false

		return tools.OK(map[string]interface{}{
			"event":           "HEALTH INSPECTOR - FAILED",
			"message":         fmt.Sprintf("Health inspector found violations! Fined $%.2f. Stand closed temporarily.", fine),
			"violations":      issues,
			"action_required": "Fix issues and reopen the stand.",
		})
	}

	t.adjustReputation(5)
	return tools.OK(map[string]interface{}{
		"event":   "HEALTH INSPECTOR - PASSED",
		"message": "Health inspector approved! Everything looks good. +5 reputation!",
	})
}

func (t *Lemonade) eventCompetitor() tools.Result {
	competitorPrice := round2(t.pricePerCup * (0.5 + t.rng.Float64()*0.4))
	lost := min(t.queue.count, 2+t.rng.Intn(4))
	t.queue.count -= lost

	return tools.OK(map[string]interface{}{
		"event":   "COMPETITOR",
		"message": fmt.Sprintf("A competitor just opened across the street! They're selling lemonade for $%g!", competitorPrice),
		"effects": map[string]interface{}{
			"customers_lost":   lost,
			"competitor_price": competitorPrice,
		},
		"advice": "Consider adjusting your price or emphasizing quality!",
	})
}

func (t *Lemonade) eventSupplyTruck() tools.Result {
	discount := 20 + t.rng.Intn(31)

	discounted := make(map[string]interface{}, len(supplyCosts))
	for k, v := range supplyCosts {
		discounted[k] = round2(v * (1 - float64(discount)/100))
	}

	return tools.OK(map[string]interface{}{
		"event":   "SUPPLY TRUCK",
		"message": fmt.Sprintf("A supply truck is offering %d%% off bulk supplies! Limited time!", discount),
		"deal": map[string]interface{}{
			"discount_percent": discount,
			"discounted_costs": discounted,
		},
		"note": "This is a limited-time event. Buy now or miss out!",
	})
}

func (t *Lemonade) eventIceMelted() tools.Result {
	iceLost := t.supplies.ice
	t.supplies.ice = 0

	return tools.OK(map[string]interface{}{
		"event":   "ICE DISASTER",
		"message": fmt.Sprintf("Oh no! Your ice cooler broke and all %d ice cubes melted!", iceLost),
		"effects": map[string]interface{}{"ice_lost": iceLost},
		"urgent":  "You need to buy more ice immediately or serve warm lemonade!",
	})
}

func (t *Lemonade) eventSpill() tools.Result {
	cupsLost := min(t.supplies.cups, 2+t.rng.Intn(5))
	t.supplies.cups -= cupsLost

	return tools.OK(map[string]interface{}{
		"event":   "SPILL",
		"message": fmt.Sprintf("Oops! You accidentally knocked over %d cups of lemonade!", cupsLost),
		"effects": map[string]interface{}{
			"cups_lost":      cupsLost,
			"cups_remaining": t.supplies.cups,
		},
	})
}

func (t *Lemonade) eventTipJar() tools.Result {
	tip := round2(5 + t.rng.Float64()*15)
	t.cash += tip
	t.stats.revenue += tip

	return tools.OK(map[string]interface{}{
		"event":   "BIG TIP",
		"message": fmt.Sprintf("A generous customer left a $%.2f tip! 'Keep up the great work!'", tip),
		"effects": map[string]interface{}{
			"tip_received": tip,
			"new_cash":     round2(t.cash),
		},
	})
}

func (t *Lemonade) eventBulkOrder() tools.Result {
	cupsWanted := 15 + t.rng.Intn(16)

	return tools.OK(map[string]interface{}{
		"event":   "BULK ORDER REQUEST",
		"message": fmt.Sprintf("An office nearby wants to order %d cups for their meeting!", cupsWanted),
		"request": map[string]interface{}{
			"cups_wanted":       cupsWanted,
			"potential_revenue": round2(float64(cupsWanted) * t.pricePerCup),
		},
		"note": "You need enough cups ready to fulfill this order!",
	})
}

func (t *Lemonade) Actions() []tools.ActionSpec {
	return []tools.ActionSpec{
		{
			Name:        "check_status",
			Description: "Get overall status of your lemonade stand (cash, inventory, customers, weather)",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        "check_inventory",
			Description: "Get detailed inventory and see how many batches you can make",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        "check_customers",
			Description: "Check customer queue and demand forecast",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        "set_price",
			Description: "Set the price per cup of lemonade",
			Parameters: objectSchema(map[string]schema.JSON{
				"price": numberProp("New price per cup in dollars"),
			}, "price"),
		},
		{
			Name:        "make_lemonade",
			Description: "Make batches of lemonade from supplies (lemons + sugar + empty cups → ready cups)",
			Parameters: objectSchema(map[string]schema.JSON{
				"batches": {Type: "integer", Description: "Number of batches to make (default: 1)", Default: 1},
			}),
		},
		{
			Name:        "serve_customers",
			Description: "Serve waiting customers (requires ready cups and ice)",
			Parameters: objectSchema(map[string]schema.JSON{
				"count": integerProp("Max customers to serve (default: all waiting)"),
			}),
		},
		{
			Name:        "buy_supplies",
			Description: "Buy supplies: lemons ($0.50), sugar ($0.25), ice ($0.10/10), cups_empty ($0.15)",
			Parameters: objectSchema(map[string]schema.JSON{
				"lemons":     integerProp("Number of lemons to buy"),
				"sugar":      integerProp("Sugar packets to buy"),
				"ice":        integerProp("Ice cubes to buy (sold in 10s)"),
				"cups_empty": integerProp("Empty cups to buy"),
			}),
		},
		{
			Name:        "adjust_recipe",
			Description: "Adjust lemonade recipe (affects taste and resource usage)",
			Parameters: objectSchema(map[string]schema.JSON{
				"lemons_per_batch": integerProp("Lemons per batch (1-10)"),
				"sugar_per_batch":  integerProp("Sugar per batch (0-10)"),
				"ice_per_cup":      integerProp("Ice per cup served (0-10)"),
			}),
		},
		{
			Name:        "close_stand",
			Description: "Close the stand for the day",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        "open_stand",
			Description: "Open the stand for business",
			Parameters:  objectSchema(nil),
		},
	}
}

func mapInt(m map[string]interface{}, key string, def int) int {
	if m == nil {
		return def
	}
	if v, ok := toInt(m[key]); ok {
		return v
	}
	return def
}
