package oracle

import (
	"strings"
	"testing"
)

func TestRenameModulesSimple(t *testing.T) {
	src := `module adder(input a, input b, output s);
    assign s = a ^ b;
endmodule`

	out, renames := RenameModules(src)
	if renames["adder"] != "golden_adder" {
		t.Fatalf("unexpected rename map: %v", renames)
	}
	if !strings.Contains(out, "module golden_adder(") {
		t.Errorf("declaration not renamed:\n%s", out)
	}
	if strings.Contains(out, "module adder(") {
		t.Errorf("original declaration survived:\n%s", out)
	}
}

func TestRenameModulesWithInstantiation(t *testing.T) {
	src := `module half(input a, input b, output s);
    assign s = a ^ b;
endmodule
module top(input x, input y, output z);
    half u0(.a(x), .b(y), .s(z));
endmodule`

	out, renames := RenameModules(src)
	if len(renames) != 2 {
		t.Fatalf("expected 2 modules renamed, got %v", renames)
	}
	if !strings.Contains(out, "golden_half u0(") {
		t.Errorf("instantiation not renamed:\n%s", out)
	}
}

func TestRenameModulesParameterized(t *testing.T) {
	src := `module fifo #(parameter DEPTH = 8) (input clk, output full);
endmodule`

	_, renames := RenameModules(src)
	if renames["fifo"] != "golden_fifo" {
		t.Fatalf("parameterized module not detected: %v", renames)
	}
}

func TestMiterScriptShape(t *testing.T) {
	c := NewYosysChecker("yosys", t.TempDir())
	script := c.miterScript("/tmp/golden.v", "/tmp/gen.v", "golden_dut", "dut")

	for _, want := range []string{
		"read_verilog /tmp/golden.v",
		"read_verilog /tmp/gen.v",
		"miter -equiv -flatten golden_dut dut miter",
		"sat -seq 20 -verify",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
}
