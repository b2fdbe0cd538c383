// Package partexpr evaluates arithmetic SQL expressions against Arrow
// record batches, giving the C5 drivers a declarative way to write a
// partition function — "id % 4", "(src + dst) % worker_count" — without
// requiring a hand-written Go func(int64) int for every graph loaded. It
// uses TiDB's SQL parser to parse the expression and dispatches to Arrow
// compute kernels for +, -, *, /, with a manual kernel for % since
// arrow-go's compute package doesn't register one.
package partexpr

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/scalar"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	"github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Evaluator evaluates arithmetic partition-key expressions against Arrow
// record batches.
type Evaluator struct {
	alloc  memory.Allocator
	parser *parser.Parser
}

// NewEvaluator creates a new expression evaluator.
func NewEvaluator(alloc memory.Allocator) *Evaluator {
	return &Evaluator{
		alloc:  alloc,
		parser: parser.New(),
	}
}

// parseExpr parses a standalone SQL expression by wrapping it in a SELECT statement.
func (ev *Evaluator) parseExpr(exprSQL string) (ast.ExprNode, error) {
	stmt, err := ev.parser.ParseOneStmt("SELECT "+exprSQL, "", "")
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", exprSQL, err)
	}
	sel, ok := stmt.(*ast.SelectStmt)
	if !ok || len(sel.Fields.Fields) == 0 {
		return nil, fmt.Errorf("parse expression %q: unexpected statement type", exprSQL)
	}
	return sel.Fields.Fields[0].Expr, nil
}

// Eval parses and evaluates a SQL expression against a record batch.
// Returns an Arrow array containing the result. The caller must Release()
// the returned array.
func (ev *Evaluator) Eval(ctx context.Context, batch arrow.Record, exprSQL string) (arrow.Array, error) {
	expr, err := ev.parseExpr(exprSQL)
	if err != nil {
		return nil, err
	}
	return ev.evalExpr(ctx, batch, expr)
}

// evalExpr dispatches AST nodes to the appropriate evaluation function. Only
// the arithmetic subset a partition key needs is supported: column
// references, integer/float literals, +, -, *, /, %, unary minus, and
// parentheses.
func (ev *Evaluator) evalExpr(ctx context.Context, batch arrow.Record, expr ast.ExprNode) (arrow.Array, error) {
	switch e := expr.(type) {
	case *ast.ColumnNameExpr:
		return ev.evalColumnRef(batch, e)
	case *test_driver.ValueExpr:
		return ev.evalLiteral(batch, e)
	case *ast.BinaryOperationExpr:
		return ev.evalBinaryOp(ctx, batch, e)
	case *ast.UnaryOperationExpr:
		return ev.evalUnaryOp(ctx, batch, e)
	case *ast.ParenthesesExpr:
		return ev.evalExpr(ctx, batch, e.Expr)
	default:
		return nil, fmt.Errorf("unsupported expression type in partition key: %T", expr)
	}
}

// ── Column references ───────────────────────────────────────────────

func (ev *Evaluator) evalColumnRef(batch arrow.Record, col *ast.ColumnNameExpr) (arrow.Array, error) {
	name := col.Name.Name.O
	schema := batch.Schema()
	indices := schema.FieldIndices(name)
	if len(indices) == 0 {
		return nil, fmt.Errorf("column %q not found in schema", name)
	}
	arr := batch.Column(indices[0])
	arr.Retain()
	return arr, nil
}

// ── Literals ────────────────────────────────────────────────────────

func (ev *Evaluator) evalLiteral(batch arrow.Record, val *test_driver.ValueExpr) (arrow.Array, error) {
	numRows := int(batch.NumRows())
	d := val.Datum

	switch d.Kind() {
	case test_driver.KindInt64:
		return makeConstantInt64(ev.alloc, d.GetInt64(), numRows), nil
	case test_driver.KindUint64:
		return makeConstantInt64(ev.alloc, int64(d.GetUint64()), numRows), nil
	case test_driver.KindFloat64:
		return makeConstantFloat64(ev.alloc, d.GetFloat64(), numRows), nil
	case test_driver.KindFloat32:
		return makeConstantFloat64(ev.alloc, float64(d.GetFloat32()), numRows), nil
	default:
		return nil, fmt.Errorf("unsupported literal kind in partition key: %v", d.Kind())
	}
}

// ── Binary operations (arithmetic only) ──────────────────────────────

func (ev *Evaluator) evalBinaryOp(ctx context.Context, batch arrow.Record, expr *ast.BinaryOperationExpr) (arrow.Array, error) {
	left, err := ev.evalExpr(ctx, batch, expr.L)
	if err != nil {
		return nil, err
	}
	defer left.Release()

	right, err := ev.evalExpr(ctx, batch, expr.R)
	if err != nil {
		return nil, err
	}
	defer right.Release()

	if expr.Op == opcode.Mod {
		return ev.evalMod(left, right)
	}

	var kernelName string
	switch expr.Op {
	case opcode.Plus:
		kernelName = "add"
	case opcode.Minus:
		kernelName = "subtract"
	case opcode.Mul:
		kernelName = "multiply"
	case opcode.Div:
		kernelName = "divide"
	default:
		return nil, fmt.Errorf("unsupported operator in partition key: %v (only +, -, *, /, %% are allowed)", expr.Op)
	}

	return ev.computeBinaryKernel(ctx, left, right, kernelName)
}

func (ev *Evaluator) computeBinaryKernel(ctx context.Context, left, right arrow.Array, kernelName string) (arrow.Array, error) {
	cl, cr, err := coercePartitionOperands(ev.alloc, left, right)
	if err != nil {
		return nil, err
	}
	defer cl.Release()
	defer cr.Release()

	result, err := compute.CallFunction(ctx, kernelName, nil,
		compute.NewDatumWithoutOwning(cl), compute.NewDatumWithoutOwning(cr))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kernelName, err)
	}
	return extractArray(result)
}

// evalMod evaluates the % operator, the operator a partition key expression
// leans on most ("id % worker_count"). Arrow-go's compute package has no
// registered modulo kernel, so this dispatches manually.
func (ev *Evaluator) evalMod(left, right arrow.Array) (arrow.Array, error) {
	n := left.Len()
	if right.Len() != n {
		return nil, fmt.Errorf("MOD: operand length mismatch (%d vs %d)", n, right.Len())
	}

	bldr := array.NewInt64Builder(ev.alloc)
	defer bldr.Release()

	for i := 0; i < n; i++ {
		if left.IsNull(i) || right.IsNull(i) {
			bldr.AppendNull()
			continue
		}
		divisor := intValue(right, i)
		if divisor == 0 {
			return nil, fmt.Errorf("MOD: division by zero at row %d", i)
		}
		bldr.Append(intValue(left, i) % divisor)
	}
	return bldr.NewArray(), nil
}

// ── Unary operations ────────────────────────────────────────────────

func (ev *Evaluator) evalUnaryOp(ctx context.Context, batch arrow.Record, expr *ast.UnaryOperationExpr) (arrow.Array, error) {
	inner, err := ev.evalExpr(ctx, batch, expr.V)
	if err != nil {
		return nil, err
	}
	defer inner.Release()

	if expr.Op != opcode.Minus {
		return nil, fmt.Errorf("unsupported unary operator in partition key: %v", expr.Op)
	}

	result, err := compute.Negate(ctx, compute.ArithmeticOptions{}, compute.NewDatumWithoutOwning(inner))
	if err != nil {
		return nil, fmt.Errorf("unary minus: %w", err)
	}
	return extractArray(result)
}

// ── Utility functions ───────────────────────────────────────────────

func extractArray(d compute.Datum) (arrow.Array, error) {
	switch v := d.(type) {
	case *compute.ArrayDatum:
		return v.MakeArray(), nil
	default:
		return nil, fmt.Errorf("unexpected datum type: %T", d)
	}
}

func makeConstantInt64(alloc memory.Allocator, val int64, n int) arrow.Array {
	sc := scalar.NewInt64Scalar(val)
	arr, _ := scalar.MakeArrayFromScalar(sc, n, alloc)
	return arr
}

func makeConstantFloat64(alloc memory.Allocator, val float64, n int) arrow.Array {
	sc := scalar.NewFloat64Scalar(val)
	arr, _ := scalar.MakeArrayFromScalar(sc, n, alloc)
	return arr
}

func intValue(arr arrow.Array, row int) int64 {
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(row)
	case *array.Int32:
		return int64(a.Value(row))
	case *array.Int16:
		return int64(a.Value(row))
	case *array.Int8:
		return int64(a.Value(row))
	case *array.Float64:
		return int64(a.Value(row))
	case *array.Float32:
		return int64(a.Value(row))
	default:
		return 0
	}
}
