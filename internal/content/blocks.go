package content

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Block is one body element of a campaign. The set of variants is closed:
// only types in this package implement it.
type Block interface {
	isBlock()
}

type Heading struct {
	Level int
	Text  string
}

// Text holds rich text; its value is inserted as HTML.
type Text struct {
	HTML string
}

type Button struct {
	Text            string
	URL             string
	BackgroundColor string
	TextColor       string
	Alignment       string
}

type Image struct {
	URL string
	Alt string
}

type Divider struct{}

type Spacer struct {
	Height int
}

type File struct {
	URL  string
	Name string
}

type CustomHTML struct {
	HTML string
}

func (Heading) isBlock()    {}
func (Text) isBlock()       {}
func (Button) isBlock()     {}
func (Image) isBlock()      {}
func (Divider) isBlock()    {}
func (Spacer) isBlock()     {}
func (File) isBlock()       {}
func (CustomHTML) isBlock() {}

type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type Header struct {
	Logo       string `json:"logo"`
	Title      string `json:"title"`
	Navigation []Link `json:"navigation"`
}

type Footer struct {
	CompanyInfo string       `json:"companyInfo"`
	SocialLinks []SocialLink `json:"socialLinks"`
}

type Offer struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

type Announcement struct {
	Title string `json:"title"`
}

// Content is the structured body of a campaign. Legacy documents carry a
// top-level block list and no header or footer.
type Content struct {
	Header       *Header
	Footer       *Footer
	Offer        *Offer
	Announcement *Announcement
	Blocks       []Block
	Legacy       bool
	Empty        bool
}

type rawBlock struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type rawContent struct {
	Header       *Header       `json:"header"`
	Footer       *Footer       `json:"footer"`
	Offer        *Offer        `json:"offer"`
	Announcement *Announcement `json:"announcement"`
	Body         *struct {
		Blocks []rawBlock `json:"blocks"`
	} `json:"body"`
	Blocks []rawBlock `json:"blocks"`
}

// Parse decodes a stored content document. A missing document yields an
// Empty content rather than an error.
func Parse(raw json.RawMessage) (Content, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Content{Empty: true}, nil
	}

	var rc rawContent
	if err := json.Unmarshal(trimmed, &rc); err != nil {
		return Content{}, fmt.Errorf("decoding content: %w", err)
	}

	c := Content{
		Header:       rc.Header,
		Footer:       rc.Footer,
		Offer:        rc.Offer,
		Announcement: rc.Announcement,
	}

	raws := rc.Blocks
	if rc.Body != nil {
		raws = rc.Body.Blocks
	} else if rc.Blocks != nil {
		c.Legacy = true
	}

	for i, rb := range raws {
		b, err := decodeBlock(rb)
		if err != nil {
			return Content{}, fmt.Errorf("block %d: %w", i, err)
		}
		c.Blocks = append(c.Blocks, b)
	}
	return c, nil
}

func decodeBlock(rb rawBlock) (Block, error) {
	data := rb.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	switch rb.Type {
	case "heading":
		var d struct {
			Level int    `json:"level"`
			Text  string `json:"text"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding heading: %w", err)
		}
		if d.Level < 1 || d.Level > 6 {
			d.Level = 2
		}
		return Heading{Level: d.Level, Text: d.Text}, nil

	case "text", "richText":
		var d struct {
			Text string `json:"text"`
			HTML string `json:"html"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding text: %w", err)
		}
		if d.Text == "" {
			d.Text = d.HTML
		}
		return Text{HTML: d.Text}, nil

	case "button":
		var d struct {
			Text            string `json:"text"`
			URL             string `json:"url"`
			BackgroundColor string `json:"backgroundColor"`
			TextColor       string `json:"textColor"`
			Alignment       string `json:"alignment"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding button: %w", err)
		}
		return Button(d), nil

	case "image":
		var d struct {
			URL string `json:"url"`
			Alt string `json:"alt"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
		return Image(d), nil

	case "divider":
		return Divider{}, nil

	case "spacer":
		var d struct {
			Height int `json:"height"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding spacer: %w", err)
		}
		if d.Height <= 0 {
			d.Height = 20
		}
		return Spacer{Height: d.Height}, nil

	case "file", "pdf":
		var d struct {
			URL  string `json:"url"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding file: %w", err)
		}
		return File(d), nil

	case "customHtml":
		var d struct {
			HTML string `json:"html"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decoding custom html: %w", err)
		}
		return CustomHTML{HTML: d.HTML}, nil
	}

	return nil, fmt.Errorf("unknown block type %q", rb.Type)
}
