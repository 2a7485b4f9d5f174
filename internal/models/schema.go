package models

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

var operatorEnum = []any{
	"greater_than", "less_than", "greater_or_equal", "less_or_equal", "equal",
	"in_range", "outside_range", "crosses_above", "crosses_below",
}

var schemaEnums = map[reflect.Type][]any{
	reflect.TypeOf(Timeframe("")):     {"M1", "M5", "M15", "M30", "H1", "H4", "D1", "W1", "MN1"},
	reflect.TypeOf(Direction("")):     {"LONG", "SHORT"},
	reflect.TypeOf(Logic("")):         {"AND", "OR"},
	reflect.TypeOf(Operator("")):      operatorEnum,
	reflect.TypeOf(DirectionMode("")): {"trend", "oscillator", "fixed"},
	reflect.TypeOf(StopMode("")):      {"pips", "atr", "percent", "rr_ratio"},
	reflect.TypeOf(SizingMethod("")):  {"fixed", "percent_risk", "volatility"},
}

// StrategySchema describes the strategy document the operator platform
// sends with START_STRATEGY.
func StrategySchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if enum, ok := schemaEnums[t]; ok {
				return &jsonschema.Schema{Type: "string", Enum: enum}
			}
			return nil
		},
	}
	schema := reflector.Reflect(&Strategy{})
	schema.Title = "strategy"
	schema.Description = "Strategy accepted by the trade bridge"
	return json.MarshalIndent(schema, "", "  ")
}
