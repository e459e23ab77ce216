package expression

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FunctionRegistry manages the allow-listed helper functions available to
// expressions. The list is fixed: expressions cannot reach arbitrary host
// functionality.
type FunctionRegistry struct {
	functions map[string]Function
	defs      map[string]*FunctionDefinition
}

// Function represents a built-in function
type Function func(args []interface{}) (interface{}, error)

// FunctionDefinition describes a registered function for documentation.
type FunctionDefinition struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

// NewFunctionRegistry creates a registry with the full helper allow-list.
func NewFunctionRegistry() *FunctionRegistry {
	fr := &FunctionRegistry{
		functions: make(map[string]Function),
		defs:      make(map[string]*FunctionDefinition),
	}

	fr.registerCollectionFunctions()
	fr.registerNumericFunctions()
	fr.registerCoercionFunctions()

	return fr
}

// Call invokes a function with the given arguments
func (fr *FunctionRegistry) Call(name string, args []interface{}) (interface{}, error) {
	fn, exists := fr.functions[name]
	if !exists {
		return nil, fmt.Errorf("unknown function: %s", name)
	}

	return fn(args)
}

// Has reports whether a function is registered.
func (fr *FunctionRegistry) Has(name string) bool {
	_, exists := fr.functions[name]
	return exists
}

// ListFunctions returns the definitions of every registered function,
// sorted by name.
func (fr *FunctionRegistry) ListFunctions() []*FunctionDefinition {
	defs := make([]*FunctionDefinition, 0, len(fr.defs))
	for _, def := range fr.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (fr *FunctionRegistry) register(name, description string, examples []string, fn Function) {
	fr.functions[name] = fn
	fr.defs[name] = &FunctionDefinition{Name: name, Description: description, Examples: examples}
}

// registerCollectionFunctions registers functions over strings, lists, and maps
func (fr *FunctionRegistry) registerCollectionFunctions() {
	// len(value) - length of a string, list, or map
	fr.register("len",
		"Returns the length of a string, list, or map.",
		[]string{"len(events) > 2", "len(agent_messages)"},
		func(args []interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("len() requires exactly 1 argument")
			}

			switch val := args[0].(type) {
			case string:
				return float64(utf8.RuneCountInString(val)), nil
			case []interface{}:
				return float64(len(val)), nil
			case map[string]interface{}:
				return float64(len(val)), nil
			case nil:
				return float64(0), nil
			default:
				return nil, fmt.Errorf("len() argument must be a string, list, or map")
			}
		})

	// sum(list) - sum of a list of numbers
	fr.register("sum",
		"Returns the sum of a list of numbers.",
		[]string{"sum(scores)", "sum(tool_calls_per_step) > 4"},
		func(args []interface{}) (interface{}, error) {
			items, err := collectionArgs("sum", args)
			if err != nil {
				return nil, err
			}

			total := 0.0
			for _, item := range items {
				total += toNumber(item)
			}
			return total, nil
		})

	// any(list) - true if any element is truthy
	fr.register("any",
		"Returns true if any element of a list is truthy.",
		[]string{"any(violations)", "any(flags) == false"},
		func(args []interface{}) (interface{}, error) {
			items, err := collectionArgs("any", args)
			if err != nil {
				return nil, err
			}

			for _, item := range items {
				if Truthy(item) {
					return true, nil
				}
			}
			return false, nil
		})

	// all(list) - true if every element is truthy
	fr.register("all",
		"Returns true if every element of a list is truthy.",
		[]string{"all(checks_passed)"},
		func(args []interface{}) (interface{}, error) {
			items, err := collectionArgs("all", args)
			if err != nil {
				return nil, err
			}

			for _, item := range items {
				if !Truthy(item) {
					return false, nil
				}
			}
			return true, nil
		})

	// min(...) / max(...) - smallest / largest of the arguments, or of a
	// single list argument
	fr.register("min",
		"Returns the smallest of the arguments, or of a single list argument.",
		[]string{"min(price, 10)", "min(scores)"},
		func(args []interface{}) (interface{}, error) {
			items, err := collectionArgs("min", args)
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, fmt.Errorf("min() of empty list")
			}

			result := toNumber(items[0])
			for _, item := range items[1:] {
				if n := toNumber(item); n < result {
					result = n
				}
			}
			return result, nil
		})

	fr.register("max",
		"Returns the largest of the arguments, or of a single list argument.",
		[]string{"max(score_a, score_b)", "max(profits)"},
		func(args []interface{}) (interface{}, error) {
			items, err := collectionArgs("max", args)
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return nil, fmt.Errorf("max() of empty list")
			}

			result := toNumber(items[0])
			for _, item := range items[1:] {
				if n := toNumber(item); n > result {
					result = n
				}
			}
			return result, nil
		})
}

// registerNumericFunctions registers numeric helpers
func (fr *FunctionRegistry) registerNumericFunctions() {
	// abs(number) - absolute value
	fr.register("abs",
		"Returns the absolute value of a number.",
		[]string{"abs(cash_balance - 1000) < 0.01"},
		func(args []interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("abs() requires exactly 1 argument")
			}
			return math.Abs(toNumber(args[0])), nil
		})

	// round(number, ndigits?) - round to ndigits decimal places
	fr.register("round",
		"Rounds a number, optionally to a number of decimal places.",
		[]string{"round(score * 100)", "round(cash_balance, 2)"},
		func(args []interface{}) (interface{}, error) {
			if len(args) < 1 || len(args) > 2 {
				return nil, fmt.Errorf("round() requires 1 or 2 arguments")
			}

			n := toNumber(args[0])
			if len(args) == 2 {
				scale := math.Pow(10, toNumber(args[1]))
				return math.Round(n*scale) / scale, nil
			}
			return math.Round(n), nil
		})
}

// registerCoercionFunctions registers the type coercions
func (fr *FunctionRegistry) registerCoercionFunctions() {
	// int(value) - truncate to an integer
	fr.register("int",
		"Coerces a value to an integer, truncating toward zero.",
		[]string{"int(cash_balance)", "int(\"42\")"},
		func(args []interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("int() requires exactly 1 argument")
			}
			return float64(int64(toNumber(args[0]))), nil
		})

	// float(value) - coerce to a number
	fr.register("float",
		"Coerces a value to a number.",
		[]string{"float(\"3.5\")", "float(count)"},
		func(args []interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("float() requires exactly 1 argument")
			}
			return toNumber(args[0]), nil
		})

	// str(value) - coerce to a string
	fr.register("str",
		"Coerces a value to its string representation.",
		[]string{"str(price)", "str(passed)"},
		func(args []interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("str() requires exactly 1 argument")
			}
			return toString(args[0]), nil
		})

	// bool(value) - coerce to a boolean using truthiness rules
	fr.register("bool",
		"Coerces a value to a boolean using truthiness rules.",
		[]string{"bool(violations)", "bool(env_state.sale_completed)"},
		func(args []interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("bool() requires exactly 1 argument")
			}
			return Truthy(args[0]), nil
		})
}

// collectionArgs normalizes variadic-or-list arguments: a single list
// argument is iterated, otherwise the arguments themselves are the items.
func collectionArgs(name string, args []interface{}) ([]interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s() requires at least 1 argument", name)
	}
	if len(args) == 1 {
		if list, ok := args[0].([]interface{}); ok {
			return list, nil
		}
	}
	return args, nil
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case []interface{}:
		// Convert arrays to comma-separated strings
		strs := make([]string, len(val))
		for i, item := range val {
			strs[i] = toString(item)
		}
		return strings.Join(strs, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toNumber(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case bool:
		if val {
			return 1
		}
		return 0
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}
