// Package filter implements the fixed, ordered admission pipeline that
// decides whether a candidate file belongs in an index. It is pure and
// side-effect-free: Decide never touches disk or the network, so Source
// adapters are responsible for handing it bytes already in hand.
package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/augmentcode/auggie-index/internal/gitignore"
)

// Tag names the stage that produced a Result, or "ok" when the file was
// admitted. Tags are stable strings so a caller can aggregate admission
// statistics across a run without depending on stage ordinals.
type Tag string

const (
	TagOK             Tag = "ok"
	TagPathTraversal  Tag = "path_traversal"
	TagSize           Tag = "size"
	TagAugmentIgnore  Tag = "augmentignore"
	TagKeyish         Tag = "keyish"
	TagBinary         Tag = "binary"
	TagGitIgnore      Tag = "gitignore"
)

// DefaultMaxSize is the size cap applied when Options.MaxSize is zero.
const DefaultMaxSize = 1 << 20 // 1 MiB

// Result is the outcome of running Decide over one candidate file.
type Result struct {
	Admit  bool
	Reason Tag
}

// Options parameterizes the size-cap stage. The zero value selects
// DefaultMaxSize.
type Options struct {
	MaxSize int64
}

// keyishPattern implements stage 4 of the pipeline: filenames that look
// like private key material or other credential files, regardless of
// directory depth.
var keyishPattern = regexp.MustCompile(`^(\.git|.*\.(pem|key|pfx|p12|jks|keystore|pkcs12|crt|cer)|id_(rsa|ed25519|ecdsa|dsa))$`)

// Decide runs the six-stage pipeline against one candidate file. augmentIgnore
// and gitIgnore may be nil, meaning no patterns configured at that stage.
func Decide(path string, contents []byte, augmentIgnore, gitIgnore *gitignore.Matcher, opts Options) Result {
	// Stage 1: path sanitation.
	if containsDotDot(path) {
		return Result{Admit: false, Reason: TagPathTraversal}
	}

	// Stage 2: size cap.
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if int64(len(contents)) > maxSize {
		return Result{Admit: false, Reason: TagSize}
	}

	// Stage 3: augment-ignore (user intent; wins over the security
	// stop-loss in stage 4).
	if augmentIgnore != nil && augmentIgnore.Match(path, false) {
		return Result{Admit: false, Reason: TagAugmentIgnore}
	}

	// Stage 4: keyish filename. Must precede the content test in stage 5
	// so known-bad paths never pay for a UTF-8 scan.
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	if keyishPattern.MatchString(base) {
		return Result{Admit: false, Reason: TagKeyish}
	}

	// Stage 5: binary/UTF-8 round-trip.
	if !utf8.Valid(contents) {
		return Result{Admit: false, Reason: TagBinary}
	}

	// Stage 6: gitignore, weakest signal, evaluated last.
	if gitIgnore != nil && gitIgnore.Match(path, false) {
		return Result{Admit: false, Reason: TagGitIgnore}
	}

	return Result{Admit: true, Reason: TagOK}
}

func containsDotDot(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// Pipeline batches admission decisions across a run and tallies
// per-reason counts for a summary log line.
type Pipeline struct {
	AugmentIgnore *gitignore.Matcher
	GitIgnore     *gitignore.Matcher
	Options       Options

	counts map[Tag]int
}

// Decide runs Decide using the pipeline's configured matchers and
// options, recording the outcome in the running tally.
func (p *Pipeline) Decide(path string, contents []byte) Result {
	if p.counts == nil {
		p.counts = make(map[Tag]int)
	}
	res := Decide(path, contents, p.AugmentIgnore, p.GitIgnore, p.Options)
	p.counts[res.Reason]++
	return res
}

// Counts returns a copy of the per-reason tally accumulated so far.
func (p *Pipeline) Counts() map[Tag]int {
	out := make(map[Tag]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}
