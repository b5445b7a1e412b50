package contextbuilder

import (
	"context"
	"fmt"

	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

// Builder assembles layered, character-budgeted context bundles.
type Builder struct {
	store    *store.Store
	resolver Resolver
}

// NewBuilder builds a Builder over s, using resolver (typically a Chain
// starting with an FSResolver) to expand manifest refs.
func NewBuilder(s *store.Store, resolver Resolver) *Builder {
	return &Builder{store: s, resolver: resolver}
}

// Build assembles a bundle for t, never exceeding maxChars. includeDeep
// gates whether LayerDeep refs are considered at all.
func (b *Builder) Build(ctx context.Context, t *task.Task, maxChars int, includeDeep bool) (Bundle, error) {
	manifest, err := LoadManifest(b.store, t.ID)
	if err != nil {
		return Bundle{}, err
	}

	card, err := renderTaskCard(t)
	if err != nil {
		return Bundle{}, err
	}

	cardTruncated := false
	if maxChars > 0 && len(card) > maxChars {
		if maxChars > len(truncationNotice) {
			card = card[:maxChars-len(truncationNotice)] + truncationNotice
		} else {
			card = card[:maxChars]
		}
		cardTruncated = true
	}

	var sb []byte
	sb = append(sb, card...)
	sources := []Source{{Path: "task card", Layer: LayerSeed, Chars: len(card), Truncated: cardTruncated}}
	total := len(card)

	for _, layer := range []Layer{LayerSeed, LayerOptional, LayerDeep} {
		if layer == LayerDeep && !includeDeep {
			continue
		}
		exhausted := false
		for _, ref := range manifest.Refs {
			if ref.Layer != layer {
				continue
			}
			text, err := b.resolver.Resolve(ctx, t.ID, ref.Path)
			if err != nil {
				continue
			}

			remaining := maxChars - total
			if remaining <= 0 {
				exhausted = true
				break
			}

			section := fmt.Sprintf("\n\n## %s\n\n%s", ref.Path, text)
			if len(section) <= remaining {
				sb = append(sb, section...)
				total += len(section)
				sources = append(sources, Source{Path: ref.Path, Layer: layer, Chars: len(section)})
				continue
			}

			if remaining < minRemainingForTruncation {
				exhausted = true
				break
			}
			truncated := section[:remaining-len(truncationNotice)] + truncationNotice
			sb = append(sb, truncated...)
			total += len(truncated)
			sources = append(sources, Source{Path: ref.Path, Layer: layer, Chars: len(truncated), Truncated: true})
			exhausted = true
			break
		}
		if exhausted {
			break
		}
	}

	return Bundle{
		Summary:    string(sb),
		Manifest:   manifest,
		TotalChars: total,
		Sources:    sources,
	}, nil
}

func renderTaskCard(t *task.Task) (string, error) {
	data, err := task.Encode(t)
	if err != nil {
		return "", fmt.Errorf("encode task card for %s: %w", t.ID, err)
	}
	return string(data), nil
}
