// Package onnx runs a gesture classifier in process with ONNX Runtime.
//
// The model takes one normalized RGB image, NCHW float32 [1,3,S,S], on the
// input named "input" and returns logits [1,N] on "output". Each label file
// line names one class, in output order.
//
// A classifier sees the whole frame, so every result carries at most one
// "hand": the sorted class distribution of the frame.
package onnx
