package decoder

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/nao1215/tabquery/domain/model"
)

var (
	utf8BOM             = []byte{0xEF, 0xBB, 0xBF}
	candidateDelimiters = []rune{',', ';', '\t', '|'}
)

// sniffLines is how many non-empty lines delimiter detection looks at.
const sniffLines = 3

func decodeDelimited(ctx context.Context, data []byte, opts Options) (*Result, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if looksBinary(data) {
		return nil, newDecodeError(ReasonUnreadableBinary, errors.New("input contains NUL bytes"))
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(data)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var header model.Header
	var c *collector
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newDecodeError(ReasonMalformed, err)
		}

		if header == nil {
			if model.Record(cells).IsBlank() {
				continue
			}
			header = model.NormalizeHeader(cells)
			c = newCollector(ctx, len(header), opts)
			continue
		}
		if err := c.add(cells); err != nil {
			return nil, err
		}
	}

	if header == nil {
		return nil, newDecodeError(ReasonNoHeader, nil)
	}
	res := c.result(header)
	res.Delimiter = delim
	return res, nil
}

// DetectDelimiter picks the candidate delimiter that splits the first
// non-empty lines into the most fields consistently. Comma wins ties and is
// the default when nothing splits.
func DetectDelimiter(data []byte) rune {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == sniffLines {
			break
		}
	}

	best, bestScore := ',', 0
	for _, d := range candidateDelimiters {
		score := -1
		for _, line := range lines {
			n := strings.Count(line, string(d))
			if score == -1 || n < score {
				score = n
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func looksBinary(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	return bytes.IndexByte(head, 0) >= 0
}
