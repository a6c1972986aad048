// Package export writes the per-case feature matrix to Parquet for
// downstream model training: one row per (case, channel) with the varied
// parameters, extracted features and baseline deltas.
package export

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"github.com/structdyn/boltlab/internal/store"
)

// Schema is the Arrow schema of the exported feature matrix.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "case_number", Type: arrow.PrimitiveTypes.Int32},
	{Name: "case_name", Type: arrow.BinaryTypes.String},
	{Name: "is_baseline", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "element_id", Type: arrow.PrimitiveTypes.Int32},
	{Name: "stiffness_level", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "k4", Type: arrow.PrimitiveTypes.Float64},
	{Name: "node_id", Type: arrow.PrimitiveTypes.Int32},
	{Name: "dof", Type: arrow.BinaryTypes.String},
	{Name: "kind", Type: arrow.BinaryTypes.String},
	{Name: "area", Type: arrow.PrimitiveTypes.Float64},
	{Name: "peak1_freq", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "peak1_mag", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "delta_area", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "delta_peak1_freq", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "delta_peak1_mag", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

// Record builds one Arrow record from matrix rows. The caller must
// Release the record.
func Record(rows []store.MatrixRow) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, Schema)
	defer b.Release()

	for _, r := range rows {
		b.Field(0).(*array.Int32Builder).Append(int32(r.CaseNumber))
		b.Field(1).(*array.StringBuilder).Append(r.CaseName)
		b.Field(2).(*array.BooleanBuilder).Append(r.IsBaseline)
		b.Field(3).(*array.Int32Builder).Append(int32(r.ElementID))
		appendInt32(b.Field(4).(*array.Int32Builder), r.Level)
		b.Field(5).(*array.Float64Builder).Append(r.K4)
		b.Field(6).(*array.Int32Builder).Append(int32(r.NodeID))
		b.Field(7).(*array.StringBuilder).Append(r.DOF)
		b.Field(8).(*array.StringBuilder).Append(r.Kind)
		b.Field(9).(*array.Float64Builder).Append(r.Area)
		appendFloat64(b.Field(10).(*array.Float64Builder), r.Peak1Freq)
		appendFloat64(b.Field(11).(*array.Float64Builder), r.Peak1Mag)
		appendFloat64(b.Field(12).(*array.Float64Builder), r.DeltaArea)
		appendFloat64(b.Field(13).(*array.Float64Builder), r.DeltaFreq)
		appendFloat64(b.Field(14).(*array.Float64Builder), r.DeltaMag)
	}

	return b.NewRecord()
}

func appendInt32(b *array.Int32Builder, v *int) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(int32(*v))
}

func appendFloat64(b *array.Float64Builder, v *float64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

// WriteFile writes the feature matrix to a Snappy-compressed Parquet
// file at path. An empty matrix produces a valid file with the schema
// and zero rows.
func WriteFile(path string, rows []store.MatrixRow) error {
	rec := Record(rows)
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	writer, err := pqarrow.NewFileWriter(Schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write feature matrix: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
