// Package detect enriches fire-extinguisher inspections with component
// detections from the YOLO model server.
//
// The model server exposes POST /detect and accepts images as base64
// data URLs. Detections cover the extinguisher components the model was
// trained on (shell, hose, nozzle, pressure gauge, safety pin, pin seal
// and service tag). Analysis is best effort: a model-server outage
// never blocks an inspection submission, it just leaves the detections
// column empty.
package detect
