// Package sync reconciles the remote intent knowledge base with the
// local utterance corpus in both directions. Import pulls remote
// content items down into utterance sets; export pushes local
// utterances back up as alternative titles, creating content for sets
// that have no remote counterpart.
package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/convobench/inbenta-relay-go/internal/corpus"
	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
	"github.com/convobench/inbenta-relay-go/internal/inbenta"
	"github.com/convobench/inbenta-relay-go/internal/model"
)

// ContentAPI is the slice of the editor client the engine needs.
type ContentAPI interface {
	ListContents(ctx context.Context) ([]inbenta.ContentItem, error)
	CreateContent(ctx context.Context, params inbenta.CreateContentParams) error
	UpdateContent(ctx context.Context, patch inbenta.ContentPatch) error
}

type Engine struct {
	contents ContentAPI
	store    corpus.Store
}

func NewEngine(contents ContentAPI, store corpus.Store) *Engine {
	return &Engine{contents: contents, store: store}
}

type ImportOptions struct {
	// BuildConvos also generates one conversation scaffold per
	// imported set, asserting the intent against its canonical name.
	BuildConvos bool
}

type ImportResult struct {
	Sets    int
	Convos  int
	Skipped int
}

// Import pulls every valid remote content item into the corpus. Remote
// titles are not unique while corpus names are, so on a duplicate title
// the first item wins and later ones are skipped with a warning.
func (e *Engine) Import(ctx context.Context, opts ImportOptions) (*ImportResult, error) {
	items, err := e.contents.ListContents(ctx)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.Title] {
			log.Warn().
				Str("title", item.Title).
				Int64("content_id", item.ID).
				Msg("duplicate content title, keeping first occurrence")
			result.Skipped++
			continue
		}
		seen[item.Title] = true

		set := buildUtteranceSet(item)
		if err := e.store.Upsert(ctx, set); err != nil {
			return nil, apperrors.Sync(fmt.Sprintf("save utterance set %q", set.Name), err)
		}
		result.Sets++

		if opts.BuildConvos {
			if err := e.store.SaveConvo(ctx, buildConvo(item)); err != nil {
				return nil, apperrors.Sync(fmt.Sprintf("save convo %q", item.Title), err)
			}
			result.Convos++
		}
	}

	log.Info().
		Int("sets", result.Sets).
		Int("convos", result.Convos).
		Int("skipped", result.Skipped).
		Msg("import complete")
	return result, nil
}

// buildUtteranceSet derives the training phrases for one content item:
// the title, the alternative titles when the item matches on natural
// language titles, and the moderated expansions always.
func buildUtteranceSet(item inbenta.ContentItem) model.UtteranceSet {
	phrases := []string{item.Title}
	if item.NaturalLanguageTitleMatching {
		phrases = append(phrases, item.AttributeValues(inbenta.AttrAlternativeTitle)...)
	}
	phrases = append(phrases, item.AttributeValues(inbenta.AttrModerateExpanded)...)

	seen := make(map[string]bool, len(phrases))
	utterances := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if phrase == "" || seen[phrase] {
			continue
		}
		seen[phrase] = true
		utterances = append(utterances, phrase)
	}

	externalID := item.ID
	return model.UtteranceSet{
		Name:       item.Title,
		ExternalID: &externalID,
		Utterances: utterances,
	}
}

func buildConvo(item inbenta.ContentItem) model.Convo {
	botStep := model.ConvoStep{
		Sender:    "bot",
		Asserters: []model.Asserter{{Name: "INTENT", Args: []string{item.Title}}},
	}
	if answer := item.AttributeValues(inbenta.AttrAnswerText); len(answer) > 0 {
		reply := answer[0]
		if side := item.AttributeValues(inbenta.AttrSidebubbleText); len(side) > 0 {
			reply += side[0]
		}
		botStep.Text = reply
	}

	return model.Convo{
		Name: item.Title,
		Steps: []model.ConvoStep{
			{Sender: "me", Text: item.Title},
			botStep,
		},
	}
}

type ExportOptions struct {
	// DeleteOldUtterances removes remote alternative titles and
	// moderated expansions that no longer appear in the local set.
	DeleteOldUtterances bool
}

type ExportResult struct {
	Patched int
	Created int
}

// Export reconciles local sets back into the remote knowledge base.
// Each remote item is matched to at most one local set, preferring the
// recorded external id over a title match; any write failure aborts the
// batch so the remote state never ends half committed.
func (e *Engine) Export(ctx context.Context, opts ExportOptions) (*ExportResult, error) {
	sets, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	items, err := e.contents.ListContents(ctx)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{}
	consumed := make(map[string]bool, len(sets))
	for _, item := range items {
		set := matchLocalSet(item, sets, consumed)
		if set == nil {
			continue
		}
		consumed[set.Name] = true

		patch, changed := diffItem(item, *set, opts.DeleteOldUtterances)
		if !changed {
			continue
		}
		if err := e.contents.UpdateContent(ctx, patch); err != nil {
			return nil, apperrors.Sync(fmt.Sprintf("update content %d (%s)", item.ID, patch.Title), err).
				WithDetails(map[string]interface{}{"patch": patch})
		}
		result.Patched++
		log.Info().Int64("content_id", item.ID).Str("title", patch.Title).Msg("patched content")
	}

	for _, set := range sets {
		if consumed[set.Name] {
			continue
		}
		params := createParams(set)
		if err := e.contents.CreateContent(ctx, params); err != nil {
			return nil, apperrors.Sync(fmt.Sprintf("create content %q", set.Name), err).
				WithDetails(map[string]interface{}{"params": params})
		}
		result.Created++
		log.Info().Str("title", set.Name).Msg("created content")
	}

	log.Info().
		Int("patched", result.Patched).
		Int("created", result.Created).
		Msg("export complete")
	return result, nil
}

// matchLocalSet finds the local counterpart of a remote item: first by
// external id, else by name for sets never linked to a remote item.
// Already consumed sets stay consumed, mirroring the import-side
// first-occurrence rule for duplicate remote titles.
func matchLocalSet(item inbenta.ContentItem, sets []model.UtteranceSet, consumed map[string]bool) *model.UtteranceSet {
	for i := range sets {
		if sets[i].ExternalID != nil && *sets[i].ExternalID == item.ID {
			if consumed[sets[i].Name] {
				return nil
			}
			return &sets[i]
		}
	}
	for i := range sets {
		if sets[i].ExternalID == nil && sets[i].Name == item.Title {
			if consumed[sets[i].Name] {
				return nil
			}
			return &sets[i]
		}
	}
	return nil
}

// diffItem computes the patch bringing a remote item in line with its
// local set. It returns false when nothing needs to change.
func diffItem(item inbenta.ContentItem, set model.UtteranceSet, deleteOld bool) (inbenta.ContentPatch, bool) {
	local := make(map[string]bool, len(set.Utterances))
	for _, u := range set.Utterances {
		local[u] = true
	}

	attributes := cloneAttributes(item.Attributes)

	deleted := 0
	if deleteOld {
		for _, name := range []string{inbenta.AttrAlternativeTitle, inbenta.AttrModerateExpanded} {
			attr := findAttribute(attributes, name)
			if attr == nil {
				continue
			}
			kept := attr.Objects[:0]
			for _, obj := range attr.Objects {
				if local[obj.Value] {
					kept = append(kept, obj)
				} else {
					deleted++
				}
			}
			attr.Objects = kept
		}
	}

	remote := map[string]bool{item.Title: true}
	for _, v := range item.AttributeValues(inbenta.AttrAlternativeTitle) {
		remote[v] = true
	}
	for _, v := range item.AttributeValues(inbenta.AttrModerateExpanded) {
		remote[v] = true
	}

	added := 0
	for _, u := range set.Utterances {
		if remote[u] {
			continue
		}
		attr := findAttribute(attributes, inbenta.AttrAlternativeTitle)
		if attr == nil {
			attributes = append(attributes, inbenta.ContentAttribute{Name: inbenta.AttrAlternativeTitle})
			attr = &attributes[len(attributes)-1]
		}
		attr.Objects = append(attr.Objects, inbenta.AttributeObject{Value: u})
		added++
	}

	if added == 0 && deleted == 0 && set.Name == item.Title {
		return inbenta.ContentPatch{}, false
	}
	return inbenta.ContentPatch{
		ID:         item.ID,
		Title:      set.Name,
		Attributes: attributes,
	}, true
}

// createParams builds the create payload for a set with no remote
// counterpart. When the first utterance repeats the set name it is the
// canonical phrase and only the remainder becomes alternative titles.
func createParams(set model.UtteranceSet) inbenta.CreateContentParams {
	utterances := set.Utterances
	if len(utterances) > 0 && utterances[0] == set.Name {
		utterances = utterances[1:]
	}

	objects := make([]inbenta.AttributeObject, 0, len(utterances))
	for _, u := range utterances {
		objects = append(objects, inbenta.AttributeObject{Value: u})
	}

	params := inbenta.CreateContentParams{
		Title:      set.Name,
		Categories: []int{inbenta.DefaultCategoryID},
		Status:     inbenta.StatusActive,
	}
	if len(objects) > 0 {
		params.Attributes = []inbenta.ContentAttribute{{
			Name:    inbenta.AttrAlternativeTitle,
			Objects: objects,
		}}
	}
	return params
}

func cloneAttributes(attrs []inbenta.ContentAttribute) []inbenta.ContentAttribute {
	out := make([]inbenta.ContentAttribute, len(attrs))
	for i, attr := range attrs {
		out[i] = inbenta.ContentAttribute{
			Name:    attr.Name,
			Objects: append([]inbenta.AttributeObject(nil), attr.Objects...),
		}
	}
	return out
}

func findAttribute(attrs []inbenta.ContentAttribute, name string) *inbenta.ContentAttribute {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}
