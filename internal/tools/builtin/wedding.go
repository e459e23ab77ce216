package builtin

import (
	"fmt"

	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/schema"
	"github.com/dojoai/dojo/internal/tools"
)

type vendor struct {
	name      string
	cost      float64
	booked    bool
	available bool
}

// vendorOrder fixes the listing order for status reports.
var vendorOrder = []string{
	"venue", "catering", "flowers", "photography",
	"music", "cake", "dress", "decorations",
}

// Wedding is a mock wedding-planning business. The agent juggles a
// budget and vendor bookings while injected events escalate the chaos;
// denials and disasters feed the chaos level the evaluator reads.
type Wedding struct {
	base

	totalBudget float64
	spent       float64
	remaining   float64

	vendors     map[string]*vendor
	guestCount  int
	weddingDate string
	theme       string

	requestsFulfilled int
	requestsDenied    int
	disastersHandled  int
	chaosLevel        int
	brideMeltdowns    int
}

// NewWedding builds a planner with the stock vendor lineup; budget,
// guest count, date and theme come from config.
func NewWedding(ref *ast.ToolRef) *Wedding {
	t := &Wedding{base: newBase(ref, "Mock wedding planning system")}

	t.totalBudget = t.cfgFloat("budget", 50000)
	t.remaining = t.totalBudget
	t.guestCount = t.cfgInt("guest_count", 150)
	t.weddingDate = t.cfgString("wedding_date", "June 15, 2025")
	t.theme = t.cfgString("theme", "Classic Elegance")

	t.vendors = map[string]*vendor{
		"venue":       {name: "Grand Ballroom", cost: 5000, available: true},
		"catering":    {name: "Gourmet Delights", cost: 8000, available: true},
		"flowers":     {name: "Blooming Elegance", cost: 3000, available: true},
		"photography": {name: "Picture Perfect", cost: 4000, available: true},
		"music":       {name: "DJ Harmony", cost: 2000, available: true},
		"cake":        {name: "Sweet Dreams Bakery", cost: 1500, available: true},
		"dress":       {name: "Bridal Boutique", cost: 5000, available: true},
		"decorations": {name: "Event Decor Co", cost: 3000, available: true},
	}

	return t
}

func (t *Wedding) Invoke(action string, args map[string]interface{}, envState map[string]interface{}) tools.Result {
	switch action {
	case "check_status":
		return t.checkStatus(envState)
	case "check_budget":
		return t.checkBudget()
	case "book_vendor":
		return t.bookVendor(args, envState)
	case "get_vendor_options":
		return t.getVendorOptions(args)
	case "add_request":
		return t.addRequest(args, envState)
	case "change_theme":
		return t.changeTheme(args, envState)
	case "handle_emergency":
		return t.handleEmergency(args, envState)
	case "get_stats":
		return t.getStats()
	case "trigger_event":
		return t.triggerEvent(args, envState)
	default:
		return tools.Errorf("Unknown action: %s", action)
	}
}

func (t *Wedding) bookedCount() int {
	count := 0
	for _, v := range t.vendors {
		if v.booked {
			count++
		}
	}
	return count
}

func (t *Wedding) brideHappiness() int {
	happiness := 100 - t.chaosLevel*10 - t.requestsDenied*5
	if happiness < 0 {
		happiness = 0
	}
	return happiness
}

func (t *Wedding) checkStatus(envState map[string]interface{}) tools.Result {
	booked := make([]interface{}, 0)
	needed := make([]interface{}, 0)
	for _, vt := range vendorOrder {
		if t.vendors[vt].booked {
			booked = append(booked, vt)
		} else {
			needed = append(needed, vt)
		}
	}

	happiness := t.brideHappiness()
	envState["budget_remaining"] = t.remaining
	envState["vendors_booked"] = len(booked)
	envState["chaos_level"] = t.chaosLevel
	envState["bride_happiness"] = happiness

	return tools.OK(map[string]interface{}{
		"wedding_date": t.weddingDate,
		"theme":        t.theme,
		"guest_count":  t.guestCount,
		"budget": map[string]interface{}{
			"total":     t.totalBudget,
			"spent":     t.spent,
			"remaining": t.remaining,
		},
		"vendors": map[string]interface{}{
			"booked":   booked,
			"needed":   needed,
			"progress": fmt.Sprintf("%d/%d", len(booked), len(t.vendors)),
		},
		"chaos_level":     t.chaosLevel,
		"bride_happiness": happiness,
	})
}

func (t *Wedding) checkBudget() tools.Result {
	bookedCosts := map[string]interface{}{}
	remainingNeeds := 0.0
	for _, vt := range vendorOrder {
		v := t.vendors[vt]
		if v.booked {
			bookedCosts[vt] = v.cost
		} else {
			remainingNeeds += v.cost
		}
	}

	return tools.OK(map[string]interface{}{
		"total_budget":              t.totalBudget,
		"spent":                     t.spent,
		"remaining":                 t.remaining,
		"booked_costs":              bookedCosts,
		"estimated_remaining_needs": remainingNeeds,
	})
}

func (t *Wedding) bookVendor(args map[string]interface{}, envState map[string]interface{}) tools.Result {
	vendorType := stringArg(args, "vendor_type")
	if vendorType == "" {
		return tools.Errorf("vendor_type is required")
	}

	v, ok := t.vendors[vendorType]
	if !ok {
		return tools.Errorf("Unknown vendor type: %s", vendorType)
	}
	if v.booked {
		return tools.Errorf("%s already booked", vendorType)
	}
	if !v.available {
		return tools.Errorf("%s is no longer available!", v.name)
	}
	if v.cost > t.remaining {
		return tools.Errorf("Insufficient budget. Need $%g, have $%g", v.cost, t.remaining)
	}

	v.booked = true
	t.spent += v.cost
	t.remaining -= v.cost
	t.requestsFulfilled++

	envState["budget_remaining"] = t.remaining
	envState["vendors_booked"] = t.bookedCount()

	return tools.OK(map[string]interface{}{
		"vendor_type":      vendorType,
		"vendor_name":      v.name,
		"cost":             v.cost,
		"remaining_budget": t.remaining,
		"status":           "Booked successfully!",
	})
}

func (t *Wedding) getVendorOptions(args map[string]interface{}) tools.Result {
	vendorType := stringArg(args, "vendor_type")

	if v, ok := t.vendors[vendorType]; ok {
		return tools.OK(map[string]interface{}{
			"vendor_type": vendorType,
			"options": []interface{}{
				map[string]interface{}{"name": v.name, "cost": v.cost, "rating": "4.8/5", "tier": "premium"},
				map[string]interface{}{"name": "Budget " + titleCase(vendorType), "cost": float64(int(v.cost * 0.6)), "rating": "3.5/5", "tier": "budget"},
				map[string]interface{}{"name": "Luxury " + titleCase(vendorType), "cost": float64(int(v.cost * 1.5)), "rating": "5.0/5", "tier": "luxury"},
			},
		})
	}

	all := map[string]interface{}{}
	for _, vt := range vendorOrder {
		v := t.vendors[vt]
		all[vt] = map[string]interface{}{
			"current_option": v.name,
			"cost":           v.cost,
			"booked":         v.booked,
			"available":      v.available,
		}
	}
	return tools.OK(map[string]interface{}{"vendors": all})
}

func (t *Wedding) addRequest(args map[string]interface{}, envState map[string]interface{}) tools.Result {
	request := stringArg(args, "request")
	cost, _ := floatArg(args, "estimated_cost")
	approved := boolArg(args, "approved")

	if approved && cost > t.remaining {
		return tools.Errorf("Cannot approve - exceeds budget by $%g", cost-t.remaining)
	}

	if approved {
		t.spent += cost
		t.remaining -= cost
		t.requestsFulfilled++
		envState["budget_remaining"] = t.remaining

		return tools.OK(map[string]interface{}{
			"request":          request,
			"status":           "Approved and scheduled",
			"cost":             cost,
			"remaining_budget": t.remaining,
		})
	}

	reason := stringArg(args, "reason")
	if reason == "" {
		reason = "Budget constraints"
	}
	t.requestsDenied++
	t.chaosLevel++
	envState["chaos_level"] = t.chaosLevel

	return tools.OK(map[string]interface{}{
		"request":        request,
		"status":         "Denied",
		"reason":         reason,
		"warning":        "The bride is not happy about this...",
		"chaos_increase": 1,
	})
}

func (t *Wedding) changeTheme(args map[string]interface{}, envState map[string]interface{}) tools.Result {
	newTheme := stringArg(args, "theme")
	if newTheme == "" {
		return tools.Errorf("theme is required")
	}

	// Rebooking every booked vendor costs 30% of each booking.
	changeCost := 0.0
	for _, v := range t.vendors {
		if v.booked {
			changeCost += v.cost * 0.3
		}
	}

	if changeCost > t.remaining {
		t.requestsDenied++
		t.chaosLevel += 2
		return tools.Errorf("Theme change would cost $%.0f in rebooking fees. Budget only has $%g", changeCost, t.remaining)
	}

	oldTheme := t.theme
	t.theme = newTheme
	t.spent += changeCost
	t.remaining -= changeCost
	t.chaosLevel++

	envState["theme"] = newTheme
	envState["budget_remaining"] = t.remaining
	envState["chaos_level"] = t.chaosLevel

	return tools.OK(map[string]interface{}{
		"old_theme":        oldTheme,
		"new_theme":        newTheme,
		"rebooking_cost":   changeCost,
		"remaining_budget": t.remaining,
		"warning":          "Theme changes may require vendor renegotiations",
	})
}

func (t *Wedding) handleEmergency(args map[string]interface{}, envState map[string]interface{}) tools.Result {
	emergencyType := stringArg(args, "type")
	if emergencyType == "" {
		emergencyType = "unknown"
	}
	solution := stringArg(args, "solution")
	cost, _ := floatArg(args, "cost")

	if cost > t.remaining {
		return tools.Errorf("Insufficient budget for emergency fix")
	}

	t.spent += cost
	t.remaining -= cost
	t.disastersHandled++

	envState["budget_remaining"] = t.remaining
	envState["disasters_handled"] = t.disastersHandled

	return tools.OK(map[string]interface{}{
		"emergency":        emergencyType,
		"solution":         solution,
		"cost":             cost,
		"status":           "Crisis averted!",
		"remaining_budget": t.remaining,
	})
}

func (t *Wedding) getStats() tools.Result {
	efficiency := 0.0
	if t.totalBudget > 0 {
		efficiency = t.spent / t.totalBudget * 100
	}

	return tools.OK(map[string]interface{}{
		"requests_fulfilled": t.requestsFulfilled,
		"requests_denied":    t.requestsDenied,
		"disasters_handled":  t.disastersHandled,
		"chaos_level":        t.chaosLevel,
		"bride_meltdowns":    t.brideMeltdowns,
		"budget_efficiency":  fmt.Sprintf("%.1f%%", efficiency),
	})
}

func (t *Wedding) triggerEvent(args map[string]interface{}, envState map[string]interface{}) tools.Result {
	event := stringArg(args, "event")

	events := map[string]map[string]interface{}{
		"swan_ice": {
			"message":        "The bride wants a life-sized ice sculpture of a swan. No, two swans. KISSING.",
			"request":        "Twin kissing swan ice sculptures",
			"estimated_cost": 3000,
			"chaos_type":     "demand",
		},
		"white_doves": {
			"message":        "The bride insists on 50 white doves released after the ceremony. Live ones.",
			"request":        "50 live white dove release",
			"estimated_cost": 2000,
			"chaos_type":     "demand",
			"complications":  "May require permits, cleanup, bird handler",
		},
		"celebrity_cake": {
			"message":        "The bride wants a cake replica of their first date location... in full 3D... life-sized.",
			"request":        "Life-sized venue replica cake",
			"estimated_cost": 8000,
			"chaos_type":     "demand",
		},
		"theme_change": {
			"message":    "The bride saw something on Pinterest. New theme: Medieval Renaissance Fairy Tale.",
			"request":    "Complete theme overhaul to Medieval Renaissance",
			"chaos_type": "disaster",
			"impact":     "All decorations, dress, venue setup need changes",
		},
		"venue_cancelled": {
			"message":       "DISASTER: The venue just called. Double-booked. They're SO sorry.",
			"disaster_type": "venue_crisis",
			"severity":      "critical",
			"requires":      "Find new venue IMMEDIATELY",
		},
		"caterer_quit": {
			"message":       "The caterer had a 'creative differences' meltdown and quit.",
			"disaster_type": "vendor_crisis",
			"severity":      "high",
			"requires":      "Find replacement caterer",
		},
		"mother_in_law": {
			"message":       "Mother-in-law demands a speech slot. Bride says OVER HER DEAD BODY.",
			"disaster_type": "family_drama",
			"severity":      "medium",
			"requires":      "Diplomatic solution",
		},
		"dress_disaster": {
			"message":       "The dress arrived. It's the wrong size. Wedding is in 2 weeks.",
			"disaster_type": "wardrobe_crisis",
			"severity":      "high",
			"requires":      "Rush alterations or new dress",
		},
		"bride_meltdown": {
			"message":    "The bride is having a FULL MELTDOWN in the vendor meeting.",
			"chaos_type": "emotional",
			"impact":     "All decisions on hold until bride calms down",
		},
		"budget_reveal": {
			"message":    "The bride just found out you've spent 80% of the budget...",
			"chaos_type": "financial",
			"impact":     "Bride demands audit of all expenses",
		},
	}

	data, ok := events[event]
	if !ok {
		return tools.Errorf("Unknown event: %s", event)
	}

	t.chaosLevel += 2
	if event == "bride_meltdown" {
		t.brideMeltdowns++
	}

	envState["chaos_level"] = t.chaosLevel
	seen, _ := envState["wedding_events"].([]interface{})
	envState["wedding_events"] = append(seen, event)

	switch event {
	case "venue_cancelled":
		t.vendors["venue"].available = false
		t.vendors["venue"].booked = false
	case "caterer_quit":
		t.vendors["catering"].available = false
		t.vendors["catering"].booked = false
	}

	return tools.OK(data)
}

func (t *Wedding) Actions() []tools.ActionSpec {
	return []tools.ActionSpec{
		{
			Name:        "check_status",
			Description: "Get overall wedding planning status",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        "check_budget",
			Description: "Get detailed budget breakdown",
			Parameters:  objectSchema(nil),
		},
		{
			Name:        "book_vendor",
			Description: "Book a vendor for the wedding",
			Parameters: objectSchema(map[string]schema.JSON{
				"vendor_type": stringProp("Type: venue, catering, flowers, photography, music, cake, dress, decorations"),
			}, "vendor_type"),
		},
		{
			Name:        "get_vendor_options",
			Description: "Get vendor options and alternatives",
			Parameters: objectSchema(map[string]schema.JSON{
				"vendor_type": stringProp("Vendor category to explore"),
			}),
		},
		{
			Name:        "add_request",
			Description: "Handle a special request from the bride",
			Parameters: objectSchema(map[string]schema.JSON{
				"request":        stringProp("What the bride wants"),
				"estimated_cost": numberProp("Estimated cost"),
				"approved":       booleanProp("Approve the request?"),
				"reason":         stringProp("Reason if denying"),
			}, "request"),
		},
		{
			Name:        "change_theme",
			Description: "Change the wedding theme (expensive!)",
			Parameters: objectSchema(map[string]schema.JSON{
				"theme": stringProp("New theme"),
			}, "theme"),
		},
		{
			Name:        "handle_emergency",
			Description: "Handle a wedding emergency",
			Parameters: objectSchema(map[string]schema.JSON{
				"type":     stringProp("Emergency type"),
				"solution": stringProp("Proposed solution"),
				"cost":     numberProp("Cost of solution"),
			}, "type", "solution"),
		},
		{
			Name:        "get_stats",
			Description: "Get planning statistics",
			Parameters:  objectSchema(nil),
		},
	}
}
