/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * IPP PRINT-JOB request assembly and response decoding
 */

package main

import (
	"bytes"
	"encoding/binary"

	"github.com/OpenPrinting/goipp"
)

// IppAttr is a single named attribute of a PRINT-JOB request.
// Value is a string, an int or a bool
type IppAttr struct {
	Name  string
	Value interface{}
}

// IppAttrs is an ordered attribute list. Order matters on the wire:
// IPP requires charset and natural-language first, and some embedded
// IPP servers are sensitive to the order of what follows
type IppAttrs []IppAttr

// Add appends an attribute
func (attrs *IppAttrs) Add(name string, value interface{}) {
	*attrs = append(*attrs, IppAttr{Name: name, Value: value})
}

// ippStringTags chooses the value tag for string-valued attributes.
// This is a deliberate fixed-table simplification: the table only
// needs to cover the attribute set used by the PRINT-JOB path,
// not a general IPP schema. Unlisted strings are sent as TEXT
var ippStringTags = map[string]byte{
	"printer-uri":          IppTagURI,
	"requesting-user-name": IppTagName,
	"job-name":             IppTagName,
	"document-name":        IppTagName,
	"document-format":      IppTagMimeType,
	"print-color-mode":     IppTagKeyword,
	"sides":                IppTagKeyword,
	"media":                IppTagKeyword,
}

// ippEnumAttrs lists integer attributes that go out under the ENUM
// tag rather than INTEGER
var ippEnumAttrs = map[string]bool{
	"print-quality":         true,
	"orientation-requested": true,
}

// IppBuildRequest assembles a complete IPP request: version,
// operation, request id, operation group with the two mandatory
// attributes first, the caller's attributes, an empty job group,
// the end-of-attributes tag, and finally the raw document bytes
func IppBuildRequest(op uint16, requestID uint32,
	attrs IppAttrs, document []byte) []byte {

	buf := &bytes.Buffer{}

	binary.Write(buf, binary.BigEndian, IppVersion11)
	binary.Write(buf, binary.BigEndian, op)
	binary.Write(buf, binary.BigEndian, requestID)

	buf.WriteByte(IppTagOperation)

	// IPP requires these two first, in this order
	ippEncodeString(buf, IppTagCharset, "attributes-charset", "utf-8")
	ippEncodeString(buf, IppTagLanguage, "attributes-natural-language", "en-us")

	for _, attr := range attrs {
		switch attr.Name {
		case "attributes-charset", "attributes-natural-language":
			continue
		}

		switch v := attr.Value.(type) {
		case string:
			tag, ok := ippStringTags[attr.Name]
			if !ok {
				tag = IppTagText
			}
			ippEncodeString(buf, tag, attr.Name, v)

		case int:
			if ippEnumAttrs[attr.Name] {
				ippEncodeEnum(buf, attr.Name, int32(v))
			} else {
				ippEncodeInteger(buf, IppTagInteger, attr.Name, int32(v))
			}

		case bool:
			ippEncodeBoolean(buf, attr.Name, v)
		}
	}

	buf.WriteByte(IppTagJob)
	buf.WriteByte(IppTagEnd)

	buf.Write(document)

	return buf.Bytes()
}

// IppResponseStatus extracts the 2-byte IPP status code from a raw
// response body. ok reports whether the body is long enough to
// contain an IPP message header at all
func IppResponseStatus(body []byte) (status uint16, ok bool) {
	if len(body) < 8 {
		return 0, false
	}

	return binary.BigEndian.Uint16(body[2:4]), true
}

// IppResponseOK reports whether a raw response body carries an IPP
// success status. Per the PRINT-JOB path only successful-ok and
// successful-ok-ignored-or-substituted-attributes count as success
func IppResponseOK(body []byte) bool {
	status, ok := IppResponseStatus(body)
	if !ok {
		return false
	}

	return status == IppStatusOk || status == IppStatusOkIgnoredAttrs
}

// IppResponseJobID decodes the response message and returns the
// job-id the printer assigned, or 0 if the response cannot be
// decoded or carries no job-id. Used for logging and history only,
// so decode failures are not errors
func IppResponseJobID(body []byte) int {
	var msg goipp.Message
	if err := msg.DecodeBytes(body); err != nil {
		return 0
	}

	for _, attr := range msg.Job {
		if attr.Name != "job-id" || len(attr.Values) == 0 {
			continue
		}
		if v, ok := attr.Values[0].V.(goipp.Integer); ok {
			return int(v)
		}
	}

	return 0
}
