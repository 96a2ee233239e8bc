package records

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/metal-toolbox/devicesync/internal/model"
)

const fieldsPerRecord = 3

// Loader returns the device records of a batch.
type Loader interface {
	Load() (model.Records, error)
}

// NewLoader returns the loader for the records file.
func NewLoader(path string) Loader {
	return &fileLoader{path: path}
}

type fileLoader struct {
	path string
}

func (l *fileLoader) Load() (model.Records, error) {
	fh, err := os.Open(l.path)
	if err != nil {
		return nil, errors.Wrap(model.ErrRecords, err.Error())
	}
	defer fh.Close()

	return Parse(fh)
}

// Parse reads rows of serial number, asset tag and extension attribute value.
//
// Blank lines and lines starting with # are ignored, leading spaces are trimmed.
// A value containing a comma must be quoted.
// A serial number seen twice keeps its first position and takes the last row's values.
func Parse(r io.Reader) (model.Records, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	var records model.Records

	index := map[string]int{}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, errors.Wrap(model.ErrRecords, err.Error())
		}

		line, _ := reader.FieldPos(0)

		record, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrap(model.ErrRecords, "line "+strconv.Itoa(line)+": "+err.Error())
		}

		if i, ok := index[record.Serial]; ok {
			records[i] = *record
			continue
		}

		index[record.Serial] = len(records)
		records = append(records, *record)
	}

	return records, nil
}

func parseRow(row []string) (*model.DeviceRecord, error) {
	if len(row) != fieldsPerRecord {
		return nil, errors.New("expected serial number, asset tag and extension attribute value, got " +
			strconv.Itoa(len(row)) + " fields")
	}

	record := &model.DeviceRecord{
		Serial:   strings.TrimSpace(row[0]),
		AssetTag: strings.TrimSpace(row[1]),
		EAValue:  strings.TrimSpace(row[2]),
	}

	if record.Serial == "" {
		return nil, errors.New("empty serial number")
	}

	return record, nil
}
