package compiler

import (
	"os"
	"strings"
	"testing"

	"koa/builtin"
	"koa/scanner"
	"koa/vm"
)

// run compiles src as a whole program and executes it, returning the
// final expression value and anything written through print().
func run(t *testing.T, src string) (string, error) {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "koa-out")
	if err != nil {
		t.Fatalf("tempfile: %v", err)
	}
	defer tmp.Close()
	prev := builtin.Writer
	builtin.Writer = tmp
	defer func() { builtin.Writer = prev }()

	c, cerr := Compile(scanner.New(src), "<test>", builtin.FuncsByName())
	if cerr != nil {
		return "", cerr
	}
	th := vm.NewThread()
	if _, rerr := th.Run(c); rerr != nil {
		return "", rerr
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	buf := make([]byte, 4096)
	n, _ := tmp.Read(buf)
	return string(buf[:n]), nil
}

func TestCompoundAssignAndPrint(t *testing.T) {
	out, err := run(t, `int x=1;x+=2;print(x);`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "3" {
		t.Fatalf("output = %q, want \"3\"", out)
	}
}

func TestRecursiveFactorial(t *testing.T) {
	out, err := run(t, `
		int fact(int n) {
			if (n <= 1) return 1;
			return n * fact(n - 1);
		}
		print(fact(6));
	`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "720" {
		t.Fatalf("output = %q, want \"720\"", out)
	}
}

func TestDictMissingKeyYieldsNull(t *testing.T) {
	out, err := run(t, `
		dict d;
		d["a"] = 1;
		print(d["missing"]);
	`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "null" {
		t.Fatalf("output = %q, want \"null\"", out)
	}
}

func TestTryCatchDivisionByZero(t *testing.T) {
	out, err := run(t, `
		try {
			int z = 0;
			print(1 / z);
		} catch (e) {
			print("caught");
		}
	`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "caught" {
		t.Fatalf("output = %q, want \"caught\"", out)
	}
}

func TestDictLiteralMakesDict(t *testing.T) {
	out, err := run(t, `
		dict d = {"a": 1, "b": 2};
		print(d["a"]);
		print(d["b"]);
	`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "1\n2" {
		t.Fatalf("output = %q, want \"1\\n2\"", out)
	}
}

func TestStructDeclarationAndFieldAccess(t *testing.T) {
	out, err := run(t, `
		struct Point {
			int x;
			int y;
		};
		struct Point p;
		p.x = 3;
		p.y = 4;
		print(p.x + p.y);
	`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "7" {
		t.Fatalf("output = %q, want \"7\"", out)
	}
}

func TestUnionDeclarationDefaultsToVoid(t *testing.T) {
	out, err := run(t, `
		union Num {
			int i;
		};
		union Num u;
		print(u);
	`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "union(void)" {
		t.Fatalf("output = %q, want \"union(void)\"", out)
	}
}

func TestSwitchFallthrough(t *testing.T) {
	out, err := run(t, `
		int x = 1;
		switch (x) {
			case 1:
			case 2:
				print("one-or-two");
				break;
			default:
				print("other");
		}
	`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "one-or-two" {
		t.Fatalf("output = %q, want \"one-or-two\"", out)
	}
}
