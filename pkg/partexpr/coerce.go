package partexpr

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// coercePartitionOperands promotes the two operands of an arithmetic
// partition-key expression to a common numeric type before handing them to
// an Arrow compute kernel, following SQL's usual integer/float widening:
// Int8/Int16/Int32 widen to Int64, and any Int/Float pairing widens to
// Float64. A partition key's final MOD step then narrows the result back to
// int64. Returns new arrays; the caller must Release them independently of
// the originals.
func coercePartitionOperands(alloc memory.Allocator, left, right arrow.Array) (arrow.Array, arrow.Array, error) {
	lt := left.DataType().ID()
	rt := right.DataType().ID()

	if lt == rt {
		left.Retain()
		right.Retain()
		return left, right, nil
	}

	target := widestNumericType(lt, rt)
	if target == arrow.NULL {
		left.Retain()
		right.Retain()
		return left, right, nil
	}

	newLeft, err := castNumeric(alloc, left, target)
	if err != nil {
		return nil, nil, fmt.Errorf("coerce left operand to %s: %w", target, err)
	}

	newRight, err := castNumeric(alloc, right, target)
	if err != nil {
		newLeft.Release()
		return nil, nil, fmt.Errorf("coerce right operand to %s: %w", target, err)
	}

	return newLeft, newRight, nil
}

// numericWidth orders numeric types from narrowest to widest so the wider
// operand's type wins a coercion.
func numericWidth(t arrow.Type) int {
	switch t {
	case arrow.INT8:
		return 1
	case arrow.INT16:
		return 2
	case arrow.INT32:
		return 3
	case arrow.INT64:
		return 4
	case arrow.FLOAT32:
		return 5
	case arrow.FLOAT64:
		return 6
	default:
		return -1
	}
}

func widthToType(width int) arrow.Type {
	switch width {
	case 1:
		return arrow.INT8
	case 2:
		return arrow.INT16
	case 3:
		return arrow.INT32
	case 4:
		return arrow.INT64
	case 5:
		return arrow.FLOAT32
	case 6:
		return arrow.FLOAT64
	default:
		return arrow.NULL
	}
}

// widestNumericType returns the common type two numeric Arrow type IDs
// should be cast to, or arrow.NULL if either isn't numeric.
func widestNumericType(a, b arrow.Type) arrow.Type {
	wa, wb := numericWidth(a), numericWidth(b)
	if wa < 0 || wb < 0 {
		return arrow.NULL
	}
	if wb > wa {
		wa = wb
	}
	switch widthToType(wa) {
	case arrow.FLOAT32, arrow.FLOAT64:
		return arrow.FLOAT64
	default:
		return arrow.INT64
	}
}

func castNumeric(alloc memory.Allocator, arr arrow.Array, target arrow.Type) (arrow.Array, error) {
	if arr.DataType().ID() == target {
		arr.Retain()
		return arr, nil
	}

	switch target {
	case arrow.INT64:
		return castToInt64(alloc, arr)
	case arrow.FLOAT64:
		return castToFloat64(alloc, arr)
	default:
		return nil, fmt.Errorf("unsupported partition-key cast target: %s", target)
	}
}

func castToInt64(alloc memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	bldr := array.NewInt64Builder(alloc)
	defer bldr.Release()

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			bldr.AppendNull()
			continue
		}
		bldr.Append(intValue(arr, i))
	}
	return bldr.NewArray(), nil
}

func castToFloat64(alloc memory.Allocator, arr arrow.Array) (arrow.Array, error) {
	bldr := array.NewFloat64Builder(alloc)
	defer bldr.Release()

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			bldr.AppendNull()
			continue
		}
		switch a := arr.(type) {
		case *array.Int8:
			bldr.Append(float64(a.Value(i)))
		case *array.Int16:
			bldr.Append(float64(a.Value(i)))
		case *array.Int32:
			bldr.Append(float64(a.Value(i)))
		case *array.Int64:
			bldr.Append(float64(a.Value(i)))
		case *array.Float32:
			bldr.Append(float64(a.Value(i)))
		case *array.Float64:
			bldr.Append(a.Value(i))
		default:
			return nil, fmt.Errorf("cannot cast %T to float64", arr)
		}
	}
	return bldr.NewArray(), nil
}
