package watch

import (
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/capture/dom"
	"github.com/uxtrace/uxtrace/capture/privacy"
	"github.com/uxtrace/uxtrace/capture/selector"
	"github.com/uxtrace/uxtrace/models"
)

// FormWatcher observes input, change, focus and blur on form controls.
// Values flow through the redaction policy; focus and blur never carry a
// value at all.
type FormWatcher struct {
	page   dom.Page
	sink   Sink
	logger *zap.Logger
	policy *privacy.Policy

	detach dom.Detach
}

// NewFormWatcher creates the form channel.
func NewFormWatcher(page dom.Page, sink Sink, policy *privacy.Policy, logger *zap.Logger) *FormWatcher {
	return &FormWatcher{page: page, sink: sink, logger: logger, policy: policy}
}

// Start attaches the form observer.
func (w *FormWatcher) Start() error {
	detach, err := w.page.ObserveForms(w.onForm)
	if err != nil {
		return err
	}
	w.detach = detach
	return nil
}

// Stop detaches the form observer.
func (w *FormWatcher) Stop() {
	if w.detach != nil {
		w.detach()
		w.detach = nil
	}
}

func (w *FormWatcher) onForm(ev dom.FormEvent) {
	guard(w.logger, "form", func() {
		el := ev.Target
		if el == nil || !el.IsFormControl() {
			return
		}
		if w.policy.IsExcluded(el) {
			return
		}

		data := models.FormInputData{
			Selector: selector.Of(el),
			Tag:      el.Tag,
		}

		switch ev.Action {
		case dom.FormFocus:
			data.Action = models.FormActionFocus
		case dom.FormBlur:
			data.Action = models.FormActionBlur
		case dom.FormInput:
			if !isTextual(el) {
				return
			}
			data.Action = models.FormActionInput
			data.Value = w.capturedValue(el, el.Value)
			start, end := ev.SelectionStart, ev.SelectionEnd
			data.SelectionStart = &start
			data.SelectionEnd = &end
		case dom.FormChange:
			data.Action = models.FormActionChange
			switch {
			case isCheckable(el):
				checked := el.Checked
				data.Checked = &checked
			case el.Tag == "select":
				idx := el.SelectedIndex
				data.SelectedIndex = &idx
				if idx >= 0 && idx < len(el.Options) {
					data.SelectedText = w.capturedValue(el, el.Options[idx])
				}
			default:
				data.Value = w.capturedValue(el, el.Value)
			}
		default:
			return
		}

		w.sink(data)
	})
}

// capturedValue routes a live value through the masking path.
func (w *FormWatcher) capturedValue(el *dom.Node, v string) string {
	if v == "" {
		return ""
	}
	if w.policy.ShouldMask(el) {
		return privacy.MaskValue(v)
	}
	return v
}

func isTextual(el *dom.Node) bool {
	if el.Tag == "textarea" {
		return true
	}
	if el.Tag != "input" {
		return false
	}
	return !isCheckable(el)
}

func isCheckable(el *dom.Node) bool {
	t, _ := el.Attr("type")
	return t == "checkbox" || t == "radio"
}
