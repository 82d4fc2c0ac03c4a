package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ExportFile references the CSV and Parquet artefacts generated for a run.
type ExportFile struct {
	CSVPath     string
	ParquetPath string
	Count       int
}

// Export materialises the journal window [start, start+limit) as CSV and
// Parquet files under outputDir, named by export time.
func (j *Journal) Export(outputDir string, start uint64, limit int) (*ExportFile, error) {
	records, err := j.Records(start, limit)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: ensure output dir: %w", err)
	}
	stamp := j.now().UTC().Format("20060102T150405Z")
	csvPath := filepath.Join(outputDir, "journal_"+stamp+".csv")
	if err := writeCSV(csvPath, records); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(outputDir, "journal_"+stamp+".parquet")
	if err := writeParquet(parquetPath, records); err != nil {
		return nil, err
	}
	return &ExportFile{CSVPath: csvPath, ParquetPath: parquetPath, Count: len(records)}, nil
}

func writeCSV(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{"sequence", "id", "timestamp", "event_type", "attributes"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, record := range records {
		attrs, err := json.Marshal(record.Attributes)
		if err != nil {
			return fmt.Errorf("audit: encode attributes: %w", err)
		}
		row := []string{
			fmt.Sprintf("%d", record.Sequence),
			record.ID,
			time.Unix(record.Timestamp, 0).UTC().Format(time.RFC3339),
			record.EventType,
			string(attrs),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("audit: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  string `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventType  string `parquet:"name=event_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeParquet(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audit: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("audit: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range records {
		attrs, err := json.Marshal(record.Attributes)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("audit: encode attributes: %w", err)
		}
		pr := &parquetRow{
			Sequence:   int64(record.Sequence),
			ID:         record.ID,
			Timestamp:  time.Unix(record.Timestamp, 0).UTC().Format(time.RFC3339),
			EventType:  record.EventType,
			Attributes: string(attrs),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("audit: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("audit: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("audit: close parquet file: %w", err)
	}
	return nil
}
