// Package codec implements the storage engine's textual boot-record
// format: a deterministic, six-decimal-place serialisation of a
// StorageState's horizon, used only to restart a simulation from a
// previously gathered snapshot. The grammar is small and fixed by spec;
// this package implements it with a hand-written scanner rather than
// reaching for a general-purpose serialisation format.
package codec

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gridsim/ev-tariff-storage/internal/storage"
)

// Gather renders the engine's active horizon from t forward as:
//
//	state := '[' cell (', ' cell)* ']'
//	cell  := '[' ts ', ' chargers ', ' array ', ' array ']'
//	array := '[' num (', ' num)* ']'
//
// with every number printed to six decimal places.
func Gather(s *storage.State, t int) string {
	cells := s.ActiveCells(t)
	parts := make([]string, len(cells))
	for i, cv := range cells {
		parts[i] = fmt.Sprintf("[%d, %s, %s, %s]",
			cv.Timeslot, num6(cv.Chargers), array6(cv.Population), array6(cv.Energy))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func num6(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func array6(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = num6(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Restore parses text in the Gather grammar and replaces s's entire
// horizon with the parsed cells. On any parse mismatch the parse is
// aborted, the target is left with an empty horizon, and the offending
// prefix is logged — restoration never partially applies a malformed
// record.
func Restore(s *storage.State, t int, text string) error {
	p := &parser{src: text}
	cells, err := p.parseState()
	if err != nil {
		log.Printf("codec: restore at t=%d aborted: %v (near %q)", t, err, p.context())
		s.RestoreCells(t, nil)
		return err
	}
	s.RestoreCells(t, cells)
	return nil
}

// parser is a hand-written single-pass scanner over the Gather grammar.
// It holds no backtracking state beyond its cursor position, matching the
// grammar's regularity (spec.md §9: "do not invent a more general
// serialisation").
type parser struct {
	src string
	pos int
}

func (p *parser) context() string {
	end := p.pos + 24
	if end > len(p.src) {
		end = len(p.src)
	}
	start := p.pos
	if start > len(p.src) {
		start = len(p.src)
	}
	return p.src[start:end]
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) expect(b byte) error {
	c, ok := p.peek()
	if !ok || c != b {
		return fmt.Errorf("codec: expected %q at offset %d", b, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) expectLiteral(s string) error {
	if !strings.HasPrefix(p.src[p.pos:], s) {
		return fmt.Errorf("codec: expected %q at offset %d", s, p.pos)
	}
	p.pos += len(s)
	return nil
}

func (p *parser) parseState() ([]storage.CellView, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var cells []storage.CellView

	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return cells, nil
	}

	for {
		cell, err := p.parseCell()
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)

		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("codec: unexpected end of input after cell at offset %d", p.pos)
		}
		if c == ']' {
			p.pos++
			break
		}
		if err := p.expectLiteral(", "); err != nil {
			return nil, err
		}
	}
	return cells, nil
}

func (p *parser) parseCell() (storage.CellView, error) {
	var cv storage.CellView
	if err := p.expect('['); err != nil {
		return cv, err
	}
	ts, err := p.parseInt()
	if err != nil {
		return cv, err
	}
	if err := p.expectLiteral(", "); err != nil {
		return cv, err
	}
	chargers, err := p.parseNum()
	if err != nil {
		return cv, err
	}
	if err := p.expectLiteral(", "); err != nil {
		return cv, err
	}
	population, err := p.parseArray()
	if err != nil {
		return cv, err
	}
	if err := p.expectLiteral(", "); err != nil {
		return cv, err
	}
	energy, err := p.parseArray()
	if err != nil {
		return cv, err
	}
	if err := p.expect(']'); err != nil {
		return cv, err
	}
	if len(population) != len(energy) {
		return cv, fmt.Errorf("codec: cell at ts %d: population length %d != energy length %d", ts, len(population), len(energy))
	}
	cv = storage.CellView{Timeslot: ts, Chargers: chargers, Population: population, Energy: energy}
	return cv, nil
}

func (p *parser) parseArray() ([]float64, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var out []float64
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return out, nil
	}
	for {
		v, err := p.parseNum()
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("codec: unexpected end of input in array at offset %d", p.pos)
		}
		if c == ']' {
			p.pos++
			break
		}
		if err := p.expectLiteral(", "); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *parser) parseInt() (int, error) {
	start := p.pos
	if c, ok := p.peek(); ok && c == '-' {
		p.pos++
	}
	digitsStart := p.pos
	for {
		c, ok := p.peek()
		if !ok || c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	if p.pos == digitsStart {
		return 0, fmt.Errorf("codec: expected integer at offset %d", start)
	}
	v, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, fmt.Errorf("codec: malformed integer %q at offset %d", p.src[start:p.pos], start)
	}
	return v, nil
}

func (p *parser) parseNum() (float64, error) {
	start := p.pos
	if c, ok := p.peek(); ok && c == '-' {
		p.pos++
	}
	intStart := p.pos
	for {
		c, ok := p.peek()
		if !ok || c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	if p.pos == intStart {
		return 0, fmt.Errorf("codec: expected digits at offset %d", start)
	}
	if err := p.expect('.'); err != nil {
		return 0, err
	}
	fracStart := p.pos
	for {
		c, ok := p.peek()
		if !ok || c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	if p.pos == fracStart {
		return 0, fmt.Errorf("codec: expected fractional digits at offset %d", start)
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("codec: malformed number %q at offset %d", p.src[start:p.pos], start)
	}
	return v, nil
}
