package trainer

import "github.com/pkg/errors"
import "github.com/sirupsen/logrus"

import "github.com/junosan/char-lm/net"
import "github.com/junosan/char-lm/workspace"

// ResumeNames are the checkpoints tried, in order, when resuming.
var ResumeNames = []string{"best", "1", "0"}

// Resume loads the weights of a previous run from the workspace at from into
// m. An empty from is a no-op. It returns the checkpoint name used.
func Resume(m net.Model, from string, log logrus.FieldLogger) (string, error) {
	if from == "" {
		return "", nil
	}
	store, err := workspace.Open(from)
	if err != nil {
		return "", err
	}
	defer store.Close()

	for _, name := range ResumeNames {
		err := net.LoadFrom(store, name, m)
		if errors.Cause(err) == workspace.ErrNotFound {
			continue
		}
		if err != nil {
			return "", errors.Wrapf(err, "resume from %s", from)
		}
		log.WithFields(logrus.Fields{"from": from, "checkpoint": name}).Info("resumed weights")
		return name, nil
	}
	return "", errors.Wrapf(workspace.ErrNotFound, "no checkpoint to resume in %s", from)
}

// modelCheckpointer saves and loads the weights of one model in a store.
type modelCheckpointer struct {
	store workspace.Store
	model net.Model
}

// NewCheckpointer returns the Checkpointer the scheduler uses for m.
func NewCheckpointer(store workspace.Store, m net.Model) Checkpointer {
	return modelCheckpointer{store: store, model: m}
}

func (c modelCheckpointer) Save(name string) error {
	return net.SaveTo(c.store, name, c.model)
}

func (c modelCheckpointer) Load(name string) error {
	return net.LoadFrom(c.store, name, c.model)
}

func (c modelCheckpointer) Remove(name string) error {
	return c.store.Remove(name)
}
