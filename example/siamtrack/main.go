package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/swdee/go-siamtrack"
	"github.com/swdee/go-siamtrack/render"
	"github.com/swdee/go-siamtrack/tracker"
	"gocv.io/x/gocv"
)

// transform is a pooled feature transform
type transform interface {
	tracker.FeatureTransform
	SetWantFloat(bool)
	Close() error
}

// jumpIoU is the overlap between consecutive boxes below which a jump of the
// tracked object is logged
const jumpIoU = 0.3

// session is a tracker running on a transform taken from the pool
type session struct {
	tracker *tracker.Tracker
	ft      transform
	// prev is the box of the previous frame
	prev tracker.Rect
}

// Demo tracks the objects in the given boxes through a video file
type Demo struct {
	pool     *siamtrack.Pool[transform]
	params   tracker.Params
	mask     bool
	sessions []*session
	trail    *tracker.Trail
	font     render.Font
	ttf      *render.TTFFont
}

// NewDemo loads the models into a pool with one transform per tracked object
func NewDemo(mode string, models siamtrack.SiamMaskModels, paramFile string,
	platform siamtrack.Platform, poolSize int, wantFloat bool) (*Demo, error) {

	d := &Demo{
		trail: tracker.NewTrail(30),
		font:  render.DefaultFont(),
	}

	var load func(core siamtrack.CoreMask) (transform, error)

	switch mode {
	case "rpn":
		d.params = tracker.SiamRPNPPParams()
		load = func(core siamtrack.CoreMask) (transform, error) {
			return siamtrack.NewSiamRPNPP(models.SiamRPNPPModels, core)
		}

	case "mask":
		d.params = tracker.SiamMaskParams()
		d.mask = true
		load = func(core siamtrack.CoreMask) (transform, error) {
			return siamtrack.NewSiamMask(models, core)
		}

	default:
		return nil, fmt.Errorf("unknown mode %q, use 'rpn' or 'mask'", mode)
	}

	var err error

	if paramFile != "" {
		d.params, err = tracker.LoadParams(paramFile, d.params)

		if err != nil {
			return nil, fmt.Errorf("error loading tracker params: %w", err)
		}
	}

	create := func(core siamtrack.CoreMask) (transform, error) {

		ft, err := load(core)

		if err != nil {
			return nil, err
		}

		ft.SetWantFloat(wantFloat)

		return ft, nil
	}

	d.pool, err = siamtrack.NewPool(poolSize, platform.NPUCores, create)

	if err != nil {
		return nil, fmt.Errorf("error creating transform pool: %w", err)
	}

	return d, nil
}

// UseTTF renders labels with a TrueType font, an empty path uses the
// embedded Go font
func (d *Demo) UseTTF(path string, size float64) error {

	var err error
	d.ttf, err = render.NewTTFFont(path, size)

	return err
}

// Init starts a tracker session for each box on the first frame
func (d *Demo) Init(frame gocv.Mat, boxes []tracker.Rect, classID int, className string) error {

	for i, box := range boxes {

		ft, err := d.pool.Get()

		if err != nil {
			return err
		}

		var t *tracker.Tracker

		if d.mask {
			t, err = tracker.NewSiamMask(ft.(tracker.MaskTransform), d.params)
		} else {
			t, err = tracker.NewSiamRPNPP(ft, d.params)
		}

		if err != nil {
			d.pool.Return(ft)
			return fmt.Errorf("error creating tracker: %w", err)
		}

		s := &session{tracker: t, ft: ft, prev: box}
		d.sessions = append(d.sessions, s)

		if err := t.Init(frame, box, tracker.NewObject(classID, className)); err != nil {
			return fmt.Errorf("error initializing tracker %d: %w", i, err)
		}

		log.Printf("Tracking object %s at %+v", t.Object().ID, box)
	}

	return nil
}

// Track runs every session on the frame in parallel, each on its own NPU
// core
func (d *Demo) Track(frame gocv.Mat) []*tracker.Result {

	results := make([]*tracker.Result, len(d.sessions))

	var wg sync.WaitGroup

	for i, s := range d.sessions {
		wg.Add(1)

		go func(i int, s *session) {
			defer wg.Done()

			res, err := s.tracker.Track(frame)

			if err != nil {
				log.Printf("Error tracking object %s: %v", s.tracker.Object().ID, err)
				return
			}

			results[i] = res
		}(i, s)
	}

	wg.Wait()

	// drop failed sessions from the results
	out := results[:0]

	for i, res := range results {

		if res == nil {
			continue
		}

		s := d.sessions[i]

		if iou := res.Box.CalcIoU(s.prev); iou < jumpIoU {
			log.Printf("Object %s jumped, IoU with previous box %.2f", res.Object.ID, iou)
		}

		s.prev = res.Box
		out = append(out, res)
		d.trail.Add(res.Object.ID, res.Box)
	}

	return out
}

// Annotate draws the tracking results on the frame
func (d *Demo) Annotate(img *gocv.Mat, results []*tracker.Result) error {

	if d.mask {
		render.SegmentMask(img, results, 0.5)
		render.SegmentOutline(img, results, float64(d.params.MinContourArea), 2)
	}

	render.RotatedBoxes(img, results, 1)
	render.Trail(img, results, d.trail, render.DefaultTrailStyle())

	if d.ttf != nil {
		return render.TrackerBoxesTTF(img, results, d.font, d.ttf, 2)
	}

	render.TrackerBoxes(img, results, d.font, 2)

	return nil
}

// Query prints the model attributes of one pooled transform
func (d *Demo) Query(w io.Writer) error {

	ft, err := d.pool.Get()

	if err != nil {
		return err
	}

	defer d.pool.Return(ft)

	q, ok := ft.(interface{ Query(io.Writer) error })

	if !ok {
		return fmt.Errorf("transform does not support querying")
	}

	return q.Query(w)
}

// Close frees the sessions and the pool
func (d *Demo) Close() {

	for _, s := range d.sessions {
		s.tracker.Close()
		d.pool.Return(s.ft)
	}

	d.pool.Close()

	if d.ttf != nil {
		d.ttf.Close()
	}
}

// parseBoxes parses boxes given as x,y,w,h separated by semicolons
func parseBoxes(s string) ([]tracker.Rect, error) {

	var boxes []tracker.Rect

	for _, part := range strings.Split(s, ";") {

		part = strings.TrimSpace(part)

		if part == "" {
			continue
		}

		fields := strings.Split(part, ",")

		if len(fields) != 4 {
			return nil, fmt.Errorf("box %q must be x,y,w,h", part)
		}

		var v [4]float32

		for i, f := range fields {
			n, err := strconv.ParseFloat(strings.TrimSpace(f), 32)

			if err != nil {
				return nil, fmt.Errorf("box %q: %w", part, err)
			}

			v[i] = float32(n)
		}

		boxes = append(boxes, tracker.NewRect(v[0], v[1], v[2], v[3]))
	}

	if len(boxes) == 0 {
		return nil, fmt.Errorf("no boxes given")
	}

	return boxes, nil
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	mode := flag.String("mode", "rpn", "Tracker type, 'rpn' for SiamRPN++ or 'mask' for SiamMask")
	tplBackbone := flag.String("tb", "../data/siamrpnpp-backbone-127-rk3588.rknn", "RKNN compiled backbone model for the exemplar patch")
	srchBackbone := flag.String("sb", "../data/siamrpnpp-backbone-255-rk3588.rknn", "RKNN compiled backbone model for the search patch")
	tplNeck := flag.String("tn", "", "RKNN compiled neck model for the exemplar features, optional")
	srchNeck := flag.String("sn", "", "RKNN compiled neck model for the search features, optional")
	head := flag.String("hd", "../data/siamrpnpp-head-rk3588.rknn", "RKNN compiled RPN head model")
	maskHead := flag.String("mh", "", "RKNN compiled SiamMask mask head model")
	refine := flag.String("rf", "", "RKNN compiled SiamMask refine model")
	vidFile := flag.String("v", "../data/palace.mp4", "Video file to run tracking on")
	boxStr := flag.String("b", "", "Boxes of the objects to track on the first frame, x,y,w,h separated by ;")
	labelFile := flag.String("l", "", "Text file containing class labels, optional")
	classID := flag.Int("cid", -1, "Class ID of the tracked objects in the label file")
	className := flag.String("c", "", "Class name to label tracked objects with, used when no label file is given")
	paramFile := flag.String("y", "", "YAML file of tracker parameters overriding the defaults")
	outFile := flag.String("o", "out.mp4", "Output video file with tracking results drawn")
	rkPlatform := flag.String("p", "rk3588", "Rockchip CPU Model number [rk3562|rk3566|rk3568|rk3576|rk3582|rk3588]")
	ttfFont := flag.String("f", "", "TTF font file for labels, use 'go' for the embedded Go font")
	query := flag.Bool("q", false, "Print the tensor attributes of the loaded models")
	rawOutputs := flag.Bool("raw", false, "Leave model outputs as fp16/int8 and convert them in Go instead of the RKNN runtime")

	flag.Parse()

	boxes, err := parseBoxes(*boxStr)

	if err != nil {
		log.Fatalf("Invalid boxes: %v", err)
	}

	platform, err := siamtrack.LookupPlatform(*rkPlatform)

	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if err := platform.SetCPUAffinity(siamtrack.FastCores); err != nil {
		log.Printf("Failed to set CPU Affinity: %v", err)
	}

	models := siamtrack.SiamMaskModels{
		SiamRPNPPModels: siamtrack.SiamRPNPPModels{
			TemplateBackbone: *tplBackbone,
			SearchBackbone:   *srchBackbone,
			TemplateNeck:     *tplNeck,
			SearchNeck:       *srchNeck,
			Head:             *head,
		},
		MaskHead: *maskHead,
		Refine:   *refine,
	}

	name := *className

	if *labelFile != "" {
		labels, err := siamtrack.LoadLabels(*labelFile)

		if err != nil {
			log.Fatalf("Error loading labels: %v", err)
		}

		if name = siamtrack.LabelName(labels, *classID); name == "" {
			log.Fatalf("Class ID %d not in label file %s", *classID, *labelFile)
		}
	}

	demo, err := NewDemo(*mode, models, *paramFile, platform, len(boxes), !*rawOutputs)

	if err != nil {
		log.Fatalf("Error creating demo: %v", err)
	}

	defer demo.Close()

	if *query {
		if err := demo.Query(os.Stdout); err != nil {
			log.Printf("Error querying models: %v", err)
		}
	}

	switch *ttfFont {
	case "":
	case "go":
		err = demo.UseTTF("", 14)
	default:
		err = demo.UseTTF(*ttfFont, 14)
	}

	if err != nil {
		log.Fatalf("Error loading font: %v", err)
	}

	video, err := gocv.VideoCaptureFile(*vidFile)

	if err != nil {
		log.Fatalf("Error opening video file: %v", err)
	}

	defer video.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	if ok := video.Read(&frame); !ok || frame.Empty() {
		log.Fatalf("Error reading first frame from: %s", *vidFile)
	}

	if err := demo.Init(frame, boxes, *classID, name); err != nil {
		log.Fatalf("Error: %v", err)
	}

	writer, err := gocv.VideoWriterFile(*outFile, "mp4v", video.Get(gocv.VideoCaptureFPS),
		frame.Cols(), frame.Rows(), true)

	if err != nil {
		log.Fatalf("Error creating video writer: %v", err)
	}

	defer writer.Close()

	var frames int
	var elapsed time.Duration

	for video.Read(&frame) {

		if frame.Empty() {
			continue
		}

		start := time.Now()
		results := demo.Track(frame)
		elapsed += time.Since(start)
		frames++

		if err := demo.Annotate(&frame, results); err != nil {
			log.Printf("Error annotating frame: %v", err)
		}

		for _, res := range results {
			res.Close()
		}

		if err := writer.Write(frame); err != nil {
			log.Fatalf("Error writing frame: %v", err)
		}
	}

	if frames > 0 {
		log.Printf("Tracked %d frames, average %s per frame", frames,
			elapsed/time.Duration(frames))
	}

	log.Printf("Saved tracking video to %s", *outFile)
}
