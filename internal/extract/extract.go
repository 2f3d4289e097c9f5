// Package extract turns classified script lines into raw reference records
// by trying an ordered family of patterns against each active line (§4.4).
package extract

import (
	"path"
	"regexp"
	"strings"

	"github.com/depsaudit/scandex/internal/lexfilter"
	"github.com/depsaudit/scandex/internal/store"
)

// Raw is a reference before resolution: everything the extractor could
// determine from text alone.
type Raw struct {
	Line       int
	RawText    string
	TargetKind store.TargetKind
	Style      store.Style
	Background bool
	Inactive   bool

	// Populated for TargetKind == KindProcedure.
	Qualified      string
	QualifiedLower string
	SchemaPart     string
	PackagePart    string
	NamePart       string

	// Populated for TargetKind == KindScript / KindControlFile.
	WrittenPath string
	Basename    string
}

var (
	procedureCallRe = regexp.MustCompile(`(?i)\bselect\s+([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*){0,2})\s*\(((?:[^()]*|\([^()]*\))*)\)\s*from\s+dual\b`)
	controlFileRe   = regexp.MustCompile(`(?i)\bcontrol\s*=\s*([A-Za-z0-9_./\\-]+\.ctl)\b`)
	sourcedRe       = regexp.MustCompile(`(^\s*|[;&|(){}]\s*)(\.|\bsource)\s+(\S+\.(?:ksh|sh))\b`)
	interpreterRe   = regexp.MustCompile(`\b(ksh|bash|sh)\s+(\S+\.(?:ksh|sh))\b`)
	directPathRe    = regexp.MustCompile(`(?:^|[\s;&|(){}])(\S*/\S*\.(?:ksh|sh))\b`)
	bareNameCmdRe   = regexp.MustCompile(`(?:^|[;&|(){}])\s*([A-Za-z0-9_.+-]+\.(?:ksh|sh))\b`)
	trailingBgRe    = regexp.MustCompile(`&\s*$`)
)

// span is a half-open byte range already claimed by an earlier pattern,
// so a later pattern in the ordered family does not reprocess it (§4.4:
// "the matched span is removed from further consideration on that line").
type span struct{ start, end int }

func overlaps(s span, start, end int) bool {
	return start < s.end && s.start < end
}

func claimed(spans []span, start, end int) bool {
	for _, s := range spans {
		if overlaps(s, start, end) {
			return true
		}
	}
	return false
}

// Line extracts all raw references from one classified line. Procedure
// calls are recognized in both Active and HeredocBody text; control-file
// and script-invocation patterns are only tried against Active text.
// Comment lines are scanned too, but any match is flagged Inactive and
// never feeds the graph (§9 open question (a), §4.4 final paragraph).
func Line(l lexfilter.Line) []Raw {
	switch l.Class {
	case lexfilter.HeredocBody:
		return procedureCalls(l.Text, l.LineNo, false)
	case lexfilter.Comment:
		text := lexfilter.StripSingleQuoted(l.Text)
		var out []Raw
		out = append(out, procedureCalls(l.Text, l.LineNo, true)...)
		var spans []span
		out = append(out, controlFiles(text, l.LineNo, true, &spans)...)
		out = append(out, scriptInvocations(text, l.LineNo, true, &spans)...)
		return out
	case lexfilter.Active:
		text := lexfilter.StripSingleQuoted(l.Text)
		var out []Raw
		out = append(out, procedureCalls(l.Text, l.LineNo, false)...)
		var spans []span
		out = append(out, controlFiles(text, l.LineNo, false, &spans)...)
		out = append(out, scriptInvocations(text, l.LineNo, false, &spans)...)
		return out
	default:
		return nil
	}
}

// procedureCalls implements §4.4-A. It is run against the unstripped line
// text: quoted literal arguments inside the call are part of the grammar,
// not something to blank out.
func procedureCalls(text string, lineNo int, inactive bool) []Raw {
	var out []Raw
	for _, m := range procedureCallRe.FindAllStringSubmatch(text, -1) {
		qualified := m[1]
		parts := strings.Split(qualified, ".")
		var schema, pkg, name string
		switch len(parts) {
		case 1:
			name = parts[0]
		case 2:
			pkg, name = parts[0], parts[1]
		case 3:
			schema, pkg, name = parts[0], parts[1], parts[2]
		}
		out = append(out, Raw{
			Line:           lineNo,
			RawText:        m[0],
			TargetKind:     store.KindProcedure,
			Style:          store.StyleProcedureCall,
			Inactive:       inactive,
			Qualified:      qualified,
			QualifiedLower: strings.ToLower(qualified),
			SchemaPart:     schema,
			PackagePart:    pkg,
			NamePart:       name,
		})
	}
	return out
}

func controlFiles(text string, lineNo int, inactive bool, spans *[]span) []Raw {
	var out []Raw
	for _, m := range controlFileRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if claimed(*spans, start, end) {
			continue
		}
		*spans = append(*spans, span{start, end})
		writtenPath := text[m[2]:m[3]]
		out = append(out, Raw{
			Line:        lineNo,
			RawText:     text[start:end],
			TargetKind:  store.KindControlFile,
			Style:       store.StyleControlFile,
			Background:  trailingBgRe.MatchString(text),
			Inactive:    inactive,
			WrittenPath: writtenPath,
			Basename:    path.Base(path.Clean(writtenPath)),
		})
	}
	return out
}

// scriptInvocations implements §4.4-C, trying the styles in the order spec.md
// enumerates them (Sourced, Direct path, Bare name, Explicit interpreter):
// a path-bearing argument after an interpreter name (`ksh ./nightly.ksh`) is
// claimed by the direct-path pattern before the interpreter pattern gets a
// chance to run, so it is recorded StyleDirectPath, not StyleInterpreter.
// Direct path requires a "/" in the matched text and bare name forbids one,
// so the two never compete for the same span; interpreter invocations with
// a bare script name (`ksh nightly.ksh`) still fall through to the
// interpreter pattern untouched, since neither earlier pattern matches a
// slash-free name preceded by a space. Background (style 5) is a modifier
// on whichever match is found, not a separate pattern.
func scriptInvocations(text string, lineNo int, inactive bool, spans *[]span) []Raw {
	var out []Raw
	background := trailingBgRe.MatchString(text)

	for _, m := range sourcedRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[6], m[7] // group 3: the path
		if claimed(*spans, m[0], m[1]) {
			continue
		}
		*spans = append(*spans, span{m[0], m[1]})
		writtenPath := text[start:end]
		out = append(out, scriptRef(lineNo, text[m[0]:m[1]], store.StyleSourced, writtenPath, background, inactive))
	}

	for _, m := range directPathRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if claimed(*spans, start, end) {
			continue
		}
		*spans = append(*spans, span{start, end})
		writtenPath := text[start:end]
		out = append(out, scriptRef(lineNo, writtenPath, store.StyleDirectPath, writtenPath, background, inactive))
	}

	for _, m := range bareNameCmdRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if claimed(*spans, start, end) {
			continue
		}
		*spans = append(*spans, span{start, end})
		writtenPath := text[start:end]
		out = append(out, scriptRef(lineNo, writtenPath, store.StyleBareName, writtenPath, background, inactive))
	}

	for _, m := range interpreterRe.FindAllStringSubmatchIndex(text, -1) {
		if claimed(*spans, m[0], m[1]) {
			continue
		}
		*spans = append(*spans, span{m[0], m[1]})
		writtenPath := text[m[4]:m[5]]
		out = append(out, scriptRef(lineNo, text[m[0]:m[1]], store.StyleInterpreter, writtenPath, background, inactive))
	}

	return out
}

func scriptRef(lineNo int, rawText string, style store.Style, writtenPath string, background, inactive bool) Raw {
	return Raw{
		Line:        lineNo,
		RawText:     rawText,
		TargetKind:  store.KindScript,
		Style:       style,
		Background:  background,
		Inactive:    inactive,
		WrittenPath: writtenPath,
		Basename:    path.Base(path.Clean(writtenPath)),
	}
}

// File extracts raw references from every line of a classified script.
func File(lines []lexfilter.Line) []Raw {
	var out []Raw
	for _, l := range lines {
		out = append(out, Line(l)...)
	}
	return out
}
