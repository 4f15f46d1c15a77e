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
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeValue(t *testing.T) {
	midnight := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	afternoon := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"int collapses to int64", int(7), int64(7)},
		{"int32 collapses to int64", int32(7), int64(7)},
		{"int64 passes", int64(7), int64(7)},
		{"float32 widens", float32(1.5), float64(1.5)},
		{"float64 passes", float64(1.5), float64(1.5)},
		{"bytes become string", []byte("hello"), "hello"},
		{"midnight time renders as date", midnight, "2025-03-14"},
		{"timestamp renders as RFC 3339", afternoon, "2025-03-14T15:09:26Z"},
		{"string passes through", "US", "US"},
		{"bool passes through", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestNormalizeNumeric(t *testing.T) {
	tests := []struct {
		name string
		in   pgtype.Numeric
		want any
	}{
		{
			name: "negative exponent scales down",
			in:   pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true},
			want: 123.45,
		},
		{
			name: "positive exponent scales up",
			in:   pgtype.Numeric{Int: big.NewInt(12), Exp: 3, Valid: true},
			want: 12000.0,
		},
		{
			name: "zero exponent",
			in:   pgtype.Numeric{Int: big.NewInt(42), Valid: true},
			want: 42.0,
		},
		{
			name: "invalid is nil",
			in:   pgtype.Numeric{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeValue(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.InDelta(t, tt.want.(float64), got.(float64), 1e-9)
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	d := pgtype.Date{Time: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Valid: true}
	assert.Equal(t, "2025-01-02", normalizeValue(d))

	assert.Nil(t, normalizeValue(pgtype.Date{}))
}
