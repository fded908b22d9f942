package source

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/shopimport/internal/core"
)

// XMLReader reads one record per child element of the document root:
//
//	<products>
//	  <product ref="p1">...</product>
//	  <product ref="p2">...</product>
//	</products>
type XMLReader struct {
	dec     *xml.Decoder
	counter *Counter
	inRoot  bool
	done    bool
}

var _ core.RecordReader = (*XMLReader)(nil)

// NewXMLReader reads from r. size is the expected input size, 0 if unknown.
func NewXMLReader(r io.Reader, size int64) *XMLReader {
	in, counter := Wrap(r, size)
	return &XMLReader{dec: xml.NewDecoder(in), counter: counter}
}

// Next returns the next record element or io.EOF.
func (x *XMLReader) Next() (core.Record, error) {
	if x.done {
		return core.Record{}, io.EOF
	}
	for {
		tok, err := x.dec.Token()
		if errors.Is(err, io.EOF) {
			x.done = true
			if x.inRoot {
				return core.Record{}, fmt.Errorf("parse xml: %w", io.ErrUnexpectedEOF)
			}
			return core.Record{}, io.EOF
		}
		if err != nil {
			return core.Record{}, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !x.inRoot {
				x.inRoot = true
				continue
			}
			line, _ := x.dec.InputPos()
			node, err := readElement(x.dec, t)
			if err != nil {
				return core.Record{}, fmt.Errorf("parse xml line %d: %w", line, err)
			}
			return core.Record{Line: line, Node: node}, nil
		case xml.EndElement:
			// End of the root; anything after it is ignored.
			x.done = true
			x.inRoot = false
			return core.Record{}, io.EOF
		}
	}
}

// BytesRead returns the number of input bytes consumed.
func (x *XMLReader) BytesRead() int64 { return x.counter.BytesRead() }

// ParseElement parses a single XML element such as a queue message.
func ParseElement(s string) (*core.Node, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("parse xml: no element")
			}
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return readElement(dec, start)
		}
	}
}

// readElement reads the element opened by start up to its end tag.
func readElement(dec *xml.Decoder, start xml.StartElement) (*core.Node, error) {
	node := &core.Node{Name: start.Name.Local}
	if len(start.Attr) > 0 {
		node.Attrs = make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			node.Attrs[a.Name.Local] = a.Value
		}
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := readElement(dec, t)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			node.Text = text.String()
			return node, nil
		}
	}
}
