// Package trainer provides the training orchestration for character language
// models: the epoch runner, the patience based learning rate schedule with
// pivot/prev/best checkpoint rollback, and the driver tying both to a model,
// three data sets and a checkpoint workspace.
package trainer
