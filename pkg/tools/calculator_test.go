package tools

import (
	"context"
	"math"
	"testing"
)

func TestCalculatorCall(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want float64
	}{
		{name: "addition", expr: "2+3", want: 5},
		{name: "precedence", expr: "2+3*4", want: 14},
		{name: "parentheses", expr: "(2+3)*4", want: 20},
		{name: "division", expr: "10/4", want: 2.5},
		{name: "unary minus", expr: "-3*-2", want: 6},
		{name: "nested", expr: "((1+2)*(3+4))/7", want: 3},
		{name: "decimals", expr: "0.1+0.2", want: 0.3},
		{name: "spaces", expr: " 2 + 3 * 4 ", want: 14},
	}

	calc := NewCalculatorTool()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := calc.Call(context.Background(), map[string]any{"expression": tt.expr})
			if err != nil {
				t.Fatalf("Call(%q) error = %v", tt.expr, err)
			}
			result := out.(map[string]any)["result"].(float64)
			if math.Abs(result-tt.want) > 1e-9 {
				t.Errorf("Call(%q) = %v, want %v", tt.expr, result, tt.want)
			}
		})
	}
}

func TestCalculatorCallErrors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "missing argument", args: map[string]any{}},
		{name: "blank expression", args: map[string]any{"expression": "  "}},
		{name: "division by zero", args: map[string]any{"expression": "1/0"}},
		{name: "unbalanced parenthesis", args: map[string]any{"expression": "(1+2"}},
		{name: "trailing garbage", args: map[string]any{"expression": "1+2)"}},
		{name: "letters", args: map[string]any{"expression": "two+two"}},
	}

	calc := NewCalculatorTool()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := calc.Call(context.Background(), tt.args); err == nil {
				t.Errorf("Call(%v) expected error, got nil", tt.args)
			}
		})
	}
}
