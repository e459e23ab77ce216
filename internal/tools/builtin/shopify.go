package builtin

import (
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/schema"
	"github.com/dojoai/dojo/internal/tools"
)

// Shopify is a mock storefront holding orders and customers in memory.
// It backs the refund scenarios: refund_order flips the order's state
// and debits env_state's cash_balance when the module tracks one.
type Shopify struct {
	base
	orders    map[string]map[string]interface{}
	customers map[string]map[string]interface{}
}

// NewShopify builds a store seeded from config's initial_orders and
// initial_customers, falling back to a single delivered order and its
// customer.
func NewShopify(ref *ast.ToolRef) *Shopify {
	t := &Shopify{base: newBase(ref, "Mock Shopify store for orders, refunds, and customer management")}

	if raw, ok := t.cfgMap("initial_orders"); ok {
		t.orders = mapOfMaps(raw)
	} else {
		t.orders = map[string]map[string]interface{}{
			"ORD123": {
				"id":             "ORD123",
				"status":         "Delivered",
				"refunded":       false,
				"total":          99.99,
				"customer_email": "customer@example.com",
				"items": []interface{}{
					map[string]interface{}{"name": "Widget", "quantity": 1, "price": 99.99},
				},
				"created_at": "2024-01-15T10:00:00Z",
			},
		}
	}

	if raw, ok := t.cfgMap("initial_customers"); ok {
		t.customers = mapOfMaps(raw)
	} else {
		t.customers = map[string]map[string]interface{}{
			"CUST001": {
				"id":           "CUST001",
				"email":        "customer@example.com",
				"name":         "John Doe",
				"total_orders": 5,
				"total_spent":  450.00,
			},
		}
	}

	return t
}

func (t *Shopify) Invoke(action string, args map[string]interface{}, envState map[string]interface{}) tools.Result {
	switch action {
	case "get_order":
		return t.getOrder(args)
	case "refund_order":
		return t.refundOrder(args, envState)
	case "list_orders":
		return t.listOrders(args)
	case "get_customer":
		return t.getCustomer(args)
	case "update_order_status":
		return t.updateOrderStatus(args)
	default:
		return tools.Errorf("Unknown action: %s", action)
	}
}

func (t *Shopify) getOrder(args map[string]interface{}) tools.Result {
	orderID := stringArg(args, "order_id")
	if orderID == "" {
		return tools.Errorf("order_id is required")
	}

	order, ok := t.orders[orderID]
	if !ok {
		return tools.Errorf("Order not found: %s", orderID)
	}
	return tools.OK(order)
}

func (t *Shopify) refundOrder(args map[string]interface{}, envState map[string]interface{}) tools.Result {
	orderID := stringArg(args, "order_id")
	if orderID == "" {
		return tools.Errorf("order_id is required")
	}
	reason := stringArg(args, "reason")
	if reason == "" {
		reason = "Customer request"
	}

	order, ok := t.orders[orderID]
	if !ok {
		return tools.Errorf("Order not found: %s", orderID)
	}
	if refunded, _ := order["refunded"].(bool); refunded {
		return tools.Errorf("Order already refunded")
	}

	order["refunded"] = true
	order["status"] = "Refunded"
	order["refund_reason"] = reason
	amount, _ := toFloat(order["total"])

	if balance, ok := toFloat(envState["cash_balance"]); ok {
		envState["cash_balance"] = balance - amount
	}

	return tools.OK(map[string]interface{}{
		"order_id":      orderID,
		"status":        "Refunded",
		"refund_amount": amount,
		"reason":        reason,
	})
}

func (t *Shopify) listOrders(args map[string]interface{}) tools.Result {
	statusFilter := stringArg(args, "status")
	emailFilter := stringArg(args, "customer_email")

	orders := make([]interface{}, 0, len(t.orders))
	for _, id := range sortedKeys(t.orders) {
		order := t.orders[id]
		if statusFilter != "" && order["status"] != statusFilter {
			continue
		}
		if emailFilter != "" && order["customer_email"] != emailFilter {
			continue
		}
		orders = append(orders, order)
	}

	return tools.OK(map[string]interface{}{"orders": orders, "count": len(orders)})
}

func (t *Shopify) getCustomer(args map[string]interface{}) tools.Result {
	customerID := stringArg(args, "customer_id")
	email := stringArg(args, "email")

	var customer map[string]interface{}
	switch {
	case customerID != "":
		customer = t.customers[customerID]
	case email != "":
		for _, id := range sortedKeys(t.customers) {
			if t.customers[id]["email"] == email {
				customer = t.customers[id]
				break
			}
		}
	default:
		return tools.Errorf("customer_id or email is required")
	}

	if customer == nil {
		return tools.Errorf("Customer not found")
	}
	return tools.OK(customer)
}

func (t *Shopify) updateOrderStatus(args map[string]interface{}) tools.Result {
	orderID := stringArg(args, "order_id")
	status := stringArg(args, "status")

	if orderID == "" {
		return tools.Errorf("order_id is required")
	}
	if status == "" {
		return tools.Errorf("status is required")
	}

	order, ok := t.orders[orderID]
	if !ok {
		return tools.Errorf("Order not found: %s", orderID)
	}

	order["status"] = status
	return tools.OK(map[string]interface{}{"order_id": orderID, "status": status})
}

func (t *Shopify) Actions() []tools.ActionSpec {
	return []tools.ActionSpec{
		{
			Name:        "get_order",
			Description: "Get details of an order by ID",
			Parameters: objectSchema(map[string]schema.JSON{
				"order_id": stringProp("The order ID"),
			}, "order_id"),
		},
		{
			Name:        "refund_order",
			Description: "Process a refund for an order",
			Parameters: objectSchema(map[string]schema.JSON{
				"order_id": stringProp("The order ID to refund"),
				"reason":   stringProp("Reason for refund"),
			}, "order_id"),
		},
		{
			Name:        "list_orders",
			Description: "List orders with optional filters",
			Parameters: objectSchema(map[string]schema.JSON{
				"status":         stringProp("Filter by status"),
				"customer_email": stringProp("Filter by customer"),
			}),
		},
		{
			Name:        "get_customer",
			Description: "Get customer details",
			Parameters: objectSchema(map[string]schema.JSON{
				"customer_id": stringProp("The customer ID"),
				"email":       stringProp("The customer email"),
			}),
		},
		{
			Name:        "update_order_status",
			Description: "Update the status of an order",
			Parameters: objectSchema(map[string]schema.JSON{
				"order_id": stringProp("The order ID"),
				"status":   stringProp("New status"),
			}, "order_id", "status"),
		},
	}
}
