/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Media size keywords
 */

package main

import (
	"fmt"
	"sort"
	"strings"
)

// MediaSize represents paper size, in IPP units (1/100 mm)
type MediaSize struct {
	Width, Height int // Paper width and height
}

// mediaKeywords maps PWG 5101.1 self-describing media keywords to
// their sizes. The table covers the sizes office printers commonly
// advertise, not the whole PWG registry
var mediaKeywords = map[string]MediaSize{
	"iso_a3_297x420mm":         {29700, 42000},
	"iso_a4_210x297mm":         {21000, 29700},
	"iso_a5_148x210mm":         {14800, 21000},
	"iso_b5_176x250mm":         {17600, 25000},
	"na_letter_8.5x11in":       {21590, 27940},
	"na_legal_8.5x14in":        {21590, 35560},
	"na_ledger_11x17in":        {27940, 43180},
	"na_executive_7.25x10.5in": {18415, 26670},
	"jis_b5_182x257mm":         {18200, 25700},
}

// mediaAliases maps convenient short names to the full keywords
var mediaAliases = map[string]string{
	"a3":        "iso_a3_297x420mm",
	"a4":        "iso_a4_210x297mm",
	"a5":        "iso_a5_148x210mm",
	"b5":        "iso_b5_176x250mm",
	"letter":    "na_letter_8.5x11in",
	"legal":     "na_legal_8.5x14in",
	"ledger":    "na_ledger_11x17in",
	"tabloid":   "na_ledger_11x17in",
	"executive": "na_executive_7.25x10.5in",
}

// Less checks that m is less than m2, which means:
//   - Either m.Width or m.Height is less than m2.Width or m2.Height
//   - Neither of m.Width or m.Height is greater than m2.Width or m2.Height
func (m MediaSize) Less(m2 MediaSize) bool {
	return (m.Width < m2.Width && m.Height <= m2.Height) ||
		(m.Height < m2.Height && m.Width <= m2.Width)
}

// MediaKeyword resolves a user-supplied media name into a PWG
// keyword. It accepts full keywords, short aliases in any case,
// and rejects everything else with the list of known names
func MediaKeyword(name string) (string, error) {
	lower := strings.ToLower(name)

	if full, ok := mediaAliases[lower]; ok {
		return full, nil
	}
	if _, ok := mediaKeywords[lower]; ok {
		return lower, nil
	}

	names := make([]string, 0, len(mediaAliases))
	for alias := range mediaAliases {
		names = append(names, alias)
	}
	sort.Strings(names)

	return "", fmt.Errorf("unknown media %q (try one of: %s)",
		name, strings.Join(names, ", "))
}

// MediaSizeOf returns the size of a known media keyword
func MediaSizeOf(keyword string) (MediaSize, bool) {
	size, ok := mediaKeywords[keyword]
	return size, ok
}

// MediaUndersized reports whether the media behind the keyword is
// strictly smaller than the document page, in which case the
// printer is likely to scale or clip the output. The rotated page
// orientation counts as a fit: printers rotate pages that fit the
// media sideways
func MediaUndersized(keyword string, doc MediaSize) bool {
	size, ok := MediaSizeOf(keyword)
	if !ok {
		return false
	}

	rotated := MediaSize{Width: doc.Height, Height: doc.Width}
	return size.Less(doc) && size.Less(rotated)
}
