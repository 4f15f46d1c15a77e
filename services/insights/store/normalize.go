// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// =============================================================================
// Scalar Normalization
// =============================================================================

// normalizeValue converts driver-specific scalar types into plain Go values
// suitable for JSON encoding and summarizer prompts.
//
// Rules:
//   - nil stays nil
//   - integer widths collapse to int64
//   - float32 widens to float64
//   - pgtype.Numeric decodes to float64 (precision loss is acceptable for
//     display and summarization; this path never feeds back into the store)
//   - dates render as "2006-01-02", timestamps as RFC 3339
//   - []byte becomes string
//   - everything else passes through unchanged
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float32:
		return float64(x)
	case float64:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case pgtype.Numeric:
		return numericToFloat(x)
	case pgtype.Date:
		if !x.Valid {
			return nil
		}
		return x.Time.Format("2006-01-02")
	default:
		return v
	}
}

func numericToFloat(n pgtype.Numeric) any {
	if !n.Valid || n.Int == nil {
		return nil
	}
	f := new(big.Float).SetInt(n.Int)
	if n.Exp != 0 {
		scale := new(big.Float).SetFloat64(1)
		ten := big.NewFloat(10)
		exp := n.Exp
		if exp < 0 {
			exp = -exp
		}
		for i := int32(0); i < exp; i++ {
			scale.Mul(scale, ten)
		}
		if n.Exp < 0 {
			f.Quo(f, scale)
		} else {
			f.Mul(f, scale)
		}
	}
	out, _ := f.Float64()
	return out
}
