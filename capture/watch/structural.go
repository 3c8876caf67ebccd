package watch

import (
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/identity"
	"github.com/uxtrace/uxtrace/capture/privacy"
	"github.com/uxtrace/uxtrace/capture/selector"
	"github.com/uxtrace/uxtrace/capture/serialize"
	"github.com/uxtrace/uxtrace/models"
)

// StructuralWatcher observes subtree mutations. On start it emits one
// structural-snapshot of the whole document before observing begins, the
// baseline the mutation stream is relative to.
type StructuralWatcher struct {
	page       dom.Page
	sink       Sink
	logger     *zap.Logger
	registry   *identity.Registry
	policy     *privacy.Policy
	serializer *serialize.Serializer

	detach dom.Detach
}

// NewStructuralWatcher creates the structural channel.
func NewStructuralWatcher(page dom.Page, sink Sink, registry *identity.Registry, policy *privacy.Policy, logger *zap.Logger) *StructuralWatcher {
	return &StructuralWatcher{
		page:       page,
		sink:       sink,
		logger:     logger,
		registry:   registry,
		policy:     policy,
		serializer: serialize.NewSerializer(registry, policy),
	}
}

// Start emits the snapshot and attaches the mutation observer.
func (w *StructuralWatcher) Start() error {
	guard(w.logger, "structural", func() {
		root := w.serializer.Serialize(w.page.Root())
		w.sink(models.SnapshotData{Root: root, URL: w.page.URL()})
	})

	detach, err := w.page.ObserveMutations(w.onMutation)
	if err != nil {
		return err
	}
	w.detach = detach
	return nil
}

// Stop detaches the mutation observer.
func (w *StructuralWatcher) Stop() {
	if w.detach != nil {
		w.detach()
		w.detach = nil
	}
}

func (w *StructuralWatcher) onMutation(rec dom.MutationRecord) {
	guard(w.logger, "structural", func() {
		if rec.Target == nil {
			return
		}
		// Exclusion is checked at the point of observation: a target
		// inside an excluded subtree contributes nothing, ever.
		if w.policy.IsExcluded(rec.Target) {
			return
		}

		data := models.MutationData{
			TargetID: w.registry.IDOf(rec.Target),
			Selector: w.targetSelector(rec.Target),
		}

		switch rec.Kind {
		case dom.MutationChildList:
			data.Mutation = models.MutationChildList
			for _, added := range rec.Added {
				if sn := w.serializer.Serialize(added); sn != nil {
					data.Added = append(data.Added, sn)
				}
			}
			for _, removed := range rec.Removed {
				// Only nodes observed before removal have an id; a
				// node never serialized was invisible to replay anyway.
				if id, ok := w.registry.Lookup(removed); ok {
					data.RemovedIDs = append(data.RemovedIDs, id)
				}
			}
			if len(data.Added) == 0 && len(data.RemovedIDs) == 0 {
				return
			}
		case dom.MutationAttributes:
			data.Mutation = models.MutationAttributes
			data.Attribute = rec.AttributeName
			data.OldValue = rec.OldValue
			data.NewValue, _ = rec.Target.Attr(rec.AttributeName)
		case dom.MutationCharacterData:
			data.Mutation = models.MutationCharacterData
			data.OldValue = rec.OldValue
			data.NewValue = rec.Target.Text
		default:
			w.logger.Debug("unknown mutation kind", zap.Int("kind", int(rec.Kind)))
			return
		}

		w.sink(data)
	})
}

// targetSelector derives a selector for the mutation target, falling back
// to the nearest element ancestor for text and comment targets.
func (w *StructuralWatcher) targetSelector(n *dom.Node) string {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Kind == dom.ElementNode {
			return selector.Of(cur)
		}
	}
	return ""
}
