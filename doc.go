/*
go-siamtrack runs SiamRPN++ and SiamMask single object trackers on the
Rockchip NPU via the RKNN Toolkit2 C API.

The tracker package holds the per frame tracking logic, which crops the
exemplar and search patches, decodes the region proposal network outputs,
applies the scale and aspect ratio penalty with a cosine window and updates
the target box.  SiamMask additionally projects the refined mask back onto
the frame and fits a rotated rectangle to it.

The network itself is abstracted behind the tracker.FeatureTransform and
tracker.MaskTransform interfaces.  This package implements them with RKNN
models compiled for the exemplar and search patch sizes, see SiamRPNPP and
SiamMask.

These bindings have been tested on the RK3588 and should work with other
models in the RK35xx series supported by the RKNN Toolkit2.

See example code and usage in the example subdirectory.
*/
package siamtrack
