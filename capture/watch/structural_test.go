package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/domtest"
	"github.com/uxtrace/uxtrace/capture/identity"
	"github.com/uxtrace/uxtrace/capture/privacy"
	"github.com/uxtrace/uxtrace/capture/serialize"
	"github.com/uxtrace/uxtrace/models"
)

// eventLog collects everything pushed through a Sink, for assertions.
type eventLog struct {
	events []models.EventData
}

func (l *eventLog) sink(data models.EventData) {
	l.events = append(l.events, data)
}

func (l *eventLog) ofKind(kind models.EventKind) []models.EventData {
	var out []models.EventData
	for _, e := range l.events {
		if e.EventKind() == kind {
			out = append(out, e)
		}
	}
	return out
}

func newStructuralFixture(t *testing.T, root *dom.Node, cfg privacy.Config) (*domtest.Page, *StructuralWatcher, *eventLog, *identity.Registry) {
	t.Helper()
	page := domtest.NewPage(root)
	log := &eventLog{}
	reg := identity.NewRegistry()
	w := NewStructuralWatcher(page, log.sink, reg, privacy.NewPolicy(cfg), zap.NewNop())
	return page, w, log, reg
}

func TestStructuralWatcherEmitsSnapshotOnStart(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	root.AppendChild(body)

	_, w, log, _ := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	require.Len(t, log.events, 1)
	snap, ok := log.events[0].(models.SnapshotData)
	require.True(t, ok)
	require.NotNil(t, snap.Root)
	assert.Equal(t, "html", snap.Root.Name)
	assert.Equal(t, "https://example.test/", snap.URL)
}

func TestStructuralWatcherChildListMutation(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	root.AppendChild(body)

	page, w, log, reg := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	child := dom.NewElement("div", map[string]string{"id": "late"})
	page.AppendChild(body, child)

	muts := log.ofKind(models.EventStructuralMutation)
	require.Len(t, muts, 1)
	data := muts[0].(models.MutationData)
	assert.Equal(t, models.MutationChildList, data.Mutation)
	assert.Equal(t, reg.IDOf(body), data.TargetID)
	require.Len(t, data.Added, 1)
	assert.Equal(t, "div", data.Added[0].Name)
	assert.Empty(t, data.RemovedIDs)
}

func TestStructuralWatcherRemovalUsesKnownID(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	child := dom.NewElement("p", nil)
	root.AppendChild(body)
	body.AppendChild(child)

	page, w, log, reg := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	// Serialized during the snapshot, so the registry knows the child.
	childID, ok := reg.Lookup(child)
	require.True(t, ok)

	page.RemoveChild(body, child)

	muts := log.ofKind(models.EventStructuralMutation)
	require.Len(t, muts, 1)
	data := muts[0].(models.MutationData)
	assert.Equal(t, []int{childID}, data.RemovedIDs)
}

func TestStructuralWatcherDropsRemovalOfUnknownNode(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	root.AppendChild(body)

	page, w, log, _ := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	// Never serialized, so the registry has no id for it. A record with
	// neither additions nor known removals carries nothing to replay.
	stranger := dom.NewElement("div", nil)
	page.EmitMutation(dom.MutationRecord{
		Kind:    dom.MutationChildList,
		Target:  body,
		Removed: []*dom.Node{stranger},
	})

	assert.Empty(t, log.ofKind(models.EventStructuralMutation))
}

func TestStructuralWatcherAttributeMutation(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	div := dom.NewElement("div", map[string]string{"class": "old"})
	root.AppendChild(body)
	body.AppendChild(div)

	page, w, log, _ := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	page.SetAttr(div, "class", "new")

	muts := log.ofKind(models.EventStructuralMutation)
	require.Len(t, muts, 1)
	data := muts[0].(models.MutationData)
	assert.Equal(t, models.MutationAttributes, data.Mutation)
	assert.Equal(t, "class", data.Attribute)
	assert.Equal(t, "old", data.OldValue)
	assert.Equal(t, "new", data.NewValue)
}

func TestStructuralWatcherCharacterDataMutation(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	text := dom.NewText("before")
	root.AppendChild(body)
	body.AppendChild(text)

	page, w, log, _ := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	page.SetText(text, "after")

	muts := log.ofKind(models.EventStructuralMutation)
	require.Len(t, muts, 1)
	data := muts[0].(models.MutationData)
	assert.Equal(t, models.MutationCharacterData, data.Mutation)
	assert.Equal(t, "before", data.OldValue)
	assert.Equal(t, "after", data.NewValue)
	assert.Equal(t, "body", data.Selector, "text targets fall back to the nearest element ancestor")
}

func TestStructuralWatcherExcludedSubtreeIsSilent(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	hidden := dom.NewElement("div", map[string]string{"data-ux-exclude": ""})
	root.AppendChild(body)
	body.AppendChild(hidden)

	page, w, log, _ := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	page.AppendChild(hidden, dom.NewElement("span", nil))
	page.SetAttr(hidden, "class", "x")

	assert.Empty(t, log.ofKind(models.EventStructuralMutation))
}

func TestStructuralWatcherUnavailableMutations(t *testing.T) {
	root := dom.NewElement("html", nil)
	page := domtest.NewPage(root)
	page.Unsupported["mutations"] = true

	log := &eventLog{}
	w := NewStructuralWatcher(page, log.sink, identity.NewRegistry(), privacy.NewPolicy(privacy.DefaultConfig()), zap.NewNop())

	err := w.Start()
	require.ErrorIs(t, err, dom.ErrUnsupported)
	// The snapshot still went out before the observer attach failed.
	assert.Len(t, log.ofKind(models.EventStructuralSnapshot), 1)
}

func TestStructuralWatcherStopDetaches(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	root.AppendChild(body)

	page, w, log, _ := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	w.Stop()

	page.AppendChild(body, dom.NewElement("div", nil))
	assert.Empty(t, log.ofKind(models.EventStructuralMutation))
}

// findNodeByID returns the serialized node carrying the given id, or nil.
func findNodeByID(root *models.SerializedNode, id int) *models.SerializedNode {
	var found *models.SerializedNode
	root.Walk(func(n *models.SerializedNode) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// applyMutation replays one structural mutation onto a snapshot tree, the
// way a replay player applies the mutation stream.
func applyMutation(t *testing.T, root *models.SerializedNode, m models.MutationData) {
	t.Helper()
	target := findNodeByID(root, m.TargetID)
	require.NotNil(t, target, "mutation target %d must exist in the tree", m.TargetID)

	switch m.Mutation {
	case models.MutationChildList:
		if len(m.RemovedIDs) > 0 {
			removed := make(map[int]bool, len(m.RemovedIDs))
			for _, id := range m.RemovedIDs {
				removed[id] = true
			}
			kept := target.Children[:0]
			for _, c := range target.Children {
				if !removed[c.ID] {
					kept = append(kept, c)
				}
			}
			target.Children = kept
		}
		target.Children = append(target.Children, m.Added...)
	case models.MutationAttributes:
		if target.Attrs == nil {
			target.Attrs = map[string]string{}
		}
		target.Attrs[m.Attribute] = m.NewValue
	case models.MutationCharacterData:
		target.Value = m.NewValue
	}
}

func TestStructuralWatcherSnapshotPlusMutationsReconstructsTree(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	div := dom.NewElement("div", map[string]string{"class": "old"})
	text := dom.NewText("hello")
	p := dom.NewElement("p", nil)
	root.AppendChild(body)
	body.AppendChild(div)
	div.AppendChild(text)
	body.AppendChild(p)

	page, w, log, reg := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	section := dom.NewElement("section", map[string]string{"id": "late"})
	section.AppendChild(dom.NewText("added"))
	page.AppendChild(body, section)
	page.SetAttr(div, "class", "new")
	page.SetText(text, "goodbye")
	page.RemoveChild(body, p)

	snaps := log.ofKind(models.EventStructuralSnapshot)
	require.Len(t, snaps, 1)
	replayed := snaps[0].(models.SnapshotData).Root
	for _, m := range log.ofKind(models.EventStructuralMutation) {
		applyMutation(t, replayed, m.(models.MutationData))
	}

	// Re-serializing the live tree through the same registry yields the
	// tree a faithful replay must arrive at.
	want := serialize.NewSerializer(reg, privacy.NewPolicy(privacy.DefaultConfig())).Serialize(root)
	assert.Equal(t, want, replayed)
}

func TestStructuralWatcherPanicInCallbackIsContained(t *testing.T) {
	root := dom.NewElement("html", nil)
	body := dom.NewElement("body", nil)
	root.AppendChild(body)

	page, w, log, _ := newStructuralFixture(t, root, privacy.DefaultConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	// A record with an unknown kind logs and is skipped; a nil target is
	// skipped too. Neither halts later records.
	page.EmitMutation(dom.MutationRecord{Kind: dom.MutationKind(99), Target: body})
	page.EmitMutation(dom.MutationRecord{Kind: dom.MutationChildList, Target: nil})

	page.AppendChild(body, dom.NewElement("div", nil))
	assert.Len(t, log.ofKind(models.EventStructuralMutation), 1)
}
