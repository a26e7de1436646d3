/*
crowneval evaluates pre-trained tree-crown detection models (RetinaNet)
against hand-annotated aerial imagery.  It loads a serialized detection
model through OpenCV's DNN module, runs it over an evaluation split of
annotated image windows, and reports mean average precision, a
field-polygon mean IoU comparison, and plot-level recall, logging all
parameters and metrics to an experiment tracking service.

The model itself is treated as an opaque artifact.  This root package
holds the runtime for loading and running it, the postprocess package
decodes and suppresses raw network outputs, and the eval package
computes the metrics.

See cmd/crowneval for the command line driver.
*/
package crowneval
