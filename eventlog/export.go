package eventlog

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

// parquetRow is the on-disk layout of an exported event. Digest is the
// blake3 hash of the canonical row content so archived exports can be
// checked against the live log.
type parquetRow struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	AssetID    int64  `parquet:"name=asset_id, type=INT64"`
	HasAsset   bool   `parquet:"name=has_asset, type=BOOLEAN"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	Digest     string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Digest returns the hex blake3 digest of an entry. Attribute keys are hashed
// in sorted order.
func Digest(entry Entry) string {
	keys := make([]string, 0, len(entry.Attrs))
	for key := range entry.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	hasher := blake3.New(32, nil)
	fmt.Fprintf(hasher, "%d|%s|", entry.Seq, entry.Type)
	if entry.AssetID != nil {
		fmt.Fprintf(hasher, "%d", *entry.AssetID)
	}
	for _, key := range keys {
		fmt.Fprintf(hasher, "|%s=%s", key, entry.Attrs[key])
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// ExportParquet writes every event matching filter to a parquet file at path,
// paging through the log. It returns the number of rows written.
func (s *Store) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("eventlog: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("eventlog: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	filter.Limit = maxListLimit
	for {
		entries, err := s.List(ctx, filter)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, entry := range entries {
			row, err := toParquetRow(entry)
			if err != nil {
				pw.WriteStop()
				file.Close()
				return written, err
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("eventlog: parquet write: %w", err)
			}
			written++
			filter.After = entry.Seq
		}
		if len(entries) < filter.Limit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("eventlog: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("eventlog: close parquet file: %w", err)
	}
	s.logger.Info("exported event log", "path", path, "rows", written)
	return written, nil
}

func toParquetRow(entry Entry) (*parquetRow, error) {
	attrs, err := json.Marshal(entry.Attrs)
	if err != nil {
		return nil, fmt.Errorf("eventlog: encode attributes: %w", err)
	}
	row := &parquetRow{
		Seq:        int64(entry.Seq),
		Type:       entry.Type,
		Attributes: string(attrs),
		CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		Digest:     Digest(entry),
	}
	if entry.AssetID != nil {
		row.AssetID = int64(*entry.AssetID)
		row.HasAsset = true
	}
	return row, nil
}
