/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * IPP wire constants and attribute encoders
 */

package main

import (
	"bytes"
	"encoding/binary"
)

// IPP protocol version and operation codes used by this tool.
// Only PRINT-JOB is implemented
const (
	IppVersion11  uint16 = 0x0101
	IppOpPrintJob uint16 = 0x0002
)

// IPP value and delimiter tags, RFC 8010
const (
	IppTagOperation byte = 0x01
	IppTagJob       byte = 0x02
	IppTagEnd       byte = 0x03
	IppTagInteger   byte = 0x21
	IppTagBoolean   byte = 0x22
	IppTagEnum      byte = 0x23
	IppTagText      byte = 0x41
	IppTagName      byte = 0x42
	IppTagKeyword   byte = 0x44
	IppTagURI       byte = 0x45
	IppTagCharset   byte = 0x47
	IppTagLanguage  byte = 0x48
	IppTagMimeType  byte = 0x49
)

// IPP status codes this tool cares about
const (
	IppStatusOk              uint16 = 0x0000
	IppStatusOkIgnoredAttrs  uint16 = 0x0001
	IppStatusOkConflictAttrs uint16 = 0x0002
)

// ippStatusNames maps IPP status codes to their RFC 8011 names,
// for log lines only
var ippStatusNames = map[uint16]string{
	0x0000: "successful-ok",
	0x0001: "successful-ok-ignored-or-substituted-attributes",
	0x0002: "successful-ok-conflicting-attributes",
	0x0400: "client-error-bad-request",
	0x0401: "client-error-forbidden",
	0x0402: "client-error-not-authenticated",
	0x0403: "client-error-not-authorized",
	0x0404: "client-error-not-possible",
	0x0405: "client-error-timeout",
	0x0406: "client-error-not-found",
	0x0407: "client-error-gone",
	0x0408: "client-error-request-entity-too-large",
	0x0409: "client-error-request-value-too-long",
	0x040A: "client-error-document-format-not-supported",
	0x040B: "client-error-attributes-or-values-not-supported",
	0x040C: "client-error-uri-scheme-not-supported",
	0x040D: "client-error-charset-not-supported",
	0x040E: "client-error-conflicting-attributes",
	0x040F: "client-error-compression-not-supported",
	0x0500: "server-error-internal-error",
	0x0501: "server-error-operation-not-supported",
	0x0502: "server-error-service-unavailable",
	0x0503: "server-error-version-not-supported",
	0x0504: "server-error-device-error",
	0x0505: "server-error-temporary-error",
	0x0506: "server-error-not-accepting-jobs",
	0x0507: "server-error-busy",
	0x0508: "server-error-job-canceled",
}

// ippStatusName returns the symbolic name of an IPP status code
func ippStatusName(status uint16) string {
	if name, ok := ippStatusNames[status]; ok {
		return name
	}
	return "unknown"
}

// The encoders below serialize a single IPP attribute into the
// tag-length-value wire format: 1-byte value tag, 2-byte big-endian
// name length + name, 2-byte big-endian value length + value.
// Inputs are internally constructed and always well-formed, so no
// validation happens at this level.

// ippEncodeString encodes a string-valued attribute under the
// given value tag
func ippEncodeString(buf *bytes.Buffer, tag byte, name, value string) {
	buf.WriteByte(tag)
	binary.Write(buf, binary.BigEndian, uint16(len(name)))
	buf.WriteString(name)
	binary.Write(buf, binary.BigEndian, uint16(len(value)))
	buf.WriteString(value)
}

// ippEncodeInteger encodes an integer attribute under the given
// value tag (IppTagInteger or IppTagEnum)
func ippEncodeInteger(buf *bytes.Buffer, tag byte, name string, value int32) {
	buf.WriteByte(tag)
	binary.Write(buf, binary.BigEndian, uint16(len(name)))
	buf.WriteString(name)
	binary.Write(buf, binary.BigEndian, uint16(4))
	binary.Write(buf, binary.BigEndian, value)
}

// ippEncodeBoolean encodes a boolean attribute
func ippEncodeBoolean(buf *bytes.Buffer, name string, value bool) {
	buf.WriteByte(IppTagBoolean)
	binary.Write(buf, binary.BigEndian, uint16(len(name)))
	buf.WriteString(name)
	binary.Write(buf, binary.BigEndian, uint16(1))
	if value {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

// ippEncodeEnum encodes an enum attribute. On the wire an enum is
// an integer under the ENUM tag
func ippEncodeEnum(buf *bytes.Buffer, name string, value int32) {
	ippEncodeInteger(buf, IppTagEnum, name, value)
}
