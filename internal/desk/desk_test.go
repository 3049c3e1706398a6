package desk

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"frontdesk/internal/access"
	"frontdesk/internal/artifacts"
	cmodels "frontdesk/internal/correspondence/models"
	csvc "frontdesk/internal/correspondence/service"
	cstore "frontdesk/internal/correspondence/store"
	"frontdesk/internal/imaging"
	nmodels "frontdesk/internal/notice/models"
	nsvc "frontdesk/internal/notice/service"
	nstore "frontdesk/internal/notice/store"
	"frontdesk/internal/notification"
	"frontdesk/internal/protocol"
	"frontdesk/internal/receipt"
	"frontdesk/internal/verification"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/requestcontext"
)

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  map[string]bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: map[string][]byte{}, fail: map[string]bool{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for suffix := range m.fail {
		if strings.HasSuffix(path, suffix) {
			return "", io.ErrUnexpectedEOF
		}
	}
	m.blobs[path] = data
	return "mem://" + path, nil
}

func (m *memBlobs) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.blobs))
	for p := range m.blobs {
		out = append(out, p)
	}
	return out
}

type recordingDispatcher struct {
	mu        sync.Mutex
	envelopes []notification.Envelope
}

func (r *recordingDispatcher) Dispatch(_ context.Context, e notification.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, e)
	return nil
}

// blockingBlobs holds every upload until release is closed.
type blockingBlobs struct {
	*memBlobs
	release chan struct{}
}

func (b *blockingBlobs) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return b.memBlobs.Put(ctx, path, data, contentType)
}

// silentFetcher never answers until the test ends.
type silentFetcher struct {
	done  chan struct{}
	calls atomic.Int32
}

func (f *silentFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	<-f.done
	return nil, io.EOF
}

type capturingRenderer struct {
	inner DocumentRenderer
	mu    sync.Mutex
	docs  []receipt.Document
}

func (r *capturingRenderer) Render(ctx context.Context, doc receipt.Document) ([]byte, error) {
	r.mu.Lock()
	r.docs = append(r.docs, doc)
	r.mu.Unlock()
	return r.inner.Render(ctx, doc)
}

func (r *capturingRenderer) last() receipt.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[len(r.docs)-1]
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, receipt.Document) ([]byte, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "renderer down")
}

type DeskSuite struct {
	suite.Suite
	corrStore  *cstore.InMemoryStore
	corrs      *csvc.Service
	notices    *nsvc.Service
	blobs      *memBlobs
	runner     *artifacts.Runner
	dispatcher *recordingDispatcher
	desk       *Desk

	condo id.CondominiumID
	ctx   context.Context
}

func TestDeskSuite(t *testing.T) {
	suite.Run(t, new(DeskSuite))
}

func (s *DeskSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coder, err := verification.NewCoder("desk-secret")
	s.Require().NoError(err)

	s.corrStore = cstore.NewInMemory()
	s.corrs = csvc.New(s.corrStore, protocol.New(), coder, csvc.WithLogger(logger))
	s.notices = nsvc.New(nstore.NewInMemory(), protocol.New(), nsvc.WithLogger(logger))
	s.blobs = newMemBlobs()
	s.runner, err = artifacts.New(s.blobs, NewRecordPatcher(s.corrs, s.notices), artifacts.WithLogger(logger))
	s.Require().NoError(err)
	s.dispatcher = &recordingDispatcher{}

	s.desk = s.newDesk(receipt.NewRenderer(receipt.Brand{}, receipt.WithLogger(logger)), logger)

	s.condo = id.CondominiumID(uuid.New())
	ctx := requestcontext.WithActor(context.Background(), id.StaffID(uuid.New()), s.condo, string(access.RoleDoorman), "Joao Silva")
	ctx = requestcontext.WithRequestID(ctx, "req-desk")
	s.ctx = requestcontext.WithTime(ctx, time.Date(2026, 3, 14, 10, 5, 0, 0, time.UTC))
}

func (s *DeskSuite) newDesk(renderer DocumentRenderer, logger *slog.Logger) *Desk {
	return New(Deps{
		Correspondences: s.corrs,
		Notices:         s.notices,
		Images:          imaging.New(imaging.DefaultOptions(), imaging.WithLogger(logger)),
		Renderer:        renderer,
		Runner:          s.runner,
		Templates:       notification.NewTemplateService(notification.NewInMemoryTemplateStore(), notification.WithLogger(logger)),
		Composer:        notification.NewComposer("https://desk.example.com/"),
	}, WithLogger(logger), WithDispatcher(s.dispatcher))
}

func (s *DeskSuite) draft() cmodels.Draft {
	return cmodels.Draft{
		CondominiumID:   s.condo,
		CondominiumName: "Residencial Aurora",
		Recipient: cmodels.Recipient{
			BlockName:    "B",
			Unit:         "204",
			ResidentName: "Maria Souza",
			Phone:        "+55 (11) 98888-7777",
		},
	}
}

func photoJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func signaturePNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 120, 40))
	for x := 10; x < 110; x++ {
		img.Set(x, 20, color.NRGBA{A: 255})
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func (s *DeskSuite) wait(task *artifacts.Task) artifacts.Result {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := task.Wait(ctx)
	s.Require().NoError(err)
	return res
}

func (s *DeskSuite) TestRegisterReturnsLabelAndMessage() {
	reg, err := s.desk.Register(s.ctx, s.draft(), photoJPEG(1600, 900))
	s.Require().NoError(err)

	s.True(bytes.HasPrefix(reg.Label, []byte("%PDF")))
	s.Equal(cmodels.StatusPending, reg.Correspondence.Status)
	s.Contains(reg.Notification.Text, "Hello Maria")
	s.Contains(reg.Notification.Text, reg.Correspondence.Protocol)
	s.Equal("https://desk.example.com/ver/"+reg.Correspondence.ID.String(), reg.Notification.Link)
	s.True(strings.HasPrefix(reg.Notification.WhatsAppURL, "https://wa.me/5511988887777?text="))

	res := s.wait(reg.Task)
	s.True(res.Complete())
	s.Len(res.URLs, 2)

	stored, err := s.corrStore.FindByID(context.Background(), reg.Correspondence.ID)
	s.Require().NoError(err)
	s.Equal(res.URLs[artifacts.SlotPhoto], stored.PhotoURL)
	s.Equal(res.URLs[artifacts.SlotDocument], stored.DocumentURL)

	s.Require().Len(s.dispatcher.envelopes, 1)
	env := s.dispatcher.envelopes[0]
	s.Equal(notification.CategoryArrival, env.Category)
	s.Equal(reg.Correspondence.ID.String(), env.RecordID)
	s.NotEmpty(env.ID)
}

func (s *DeskSuite) TestRegisterStoresUnderCondominiumPrefix() {
	reg, err := s.desk.Register(s.ctx, s.draft(), photoJPEG(200, 100))
	s.Require().NoError(err)
	s.wait(reg.Task)

	prefix := "condominiums/" + s.condo.String() + "/correspondences/" + reg.Correspondence.ID.String() + "/"
	s.ElementsMatch([]string{prefix + "photo.jpg", prefix + "label.pdf"}, s.blobs.paths())
}

func (s *DeskSuite) TestRegisterWithoutPhotoStillRenders() {
	reg, err := s.desk.Register(s.ctx, s.draft(), nil)
	s.Require().NoError(err)
	s.NotEmpty(reg.Label)

	res := s.wait(reg.Task)
	s.Empty(res.URLs[artifacts.SlotPhoto])
	s.NotEmpty(res.URLs[artifacts.SlotDocument])
}

func (s *DeskSuite) TestRegisterValidationStoresNothing() {
	d := s.draft()
	d.Recipient.Unit = ""
	_, err := s.desk.Register(s.ctx, d, photoJPEG(10, 10))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.blobs.paths())
	s.Empty(s.dispatcher.envelopes)
}

func (s *DeskSuite) TestRegisterSurvivesRendererFailure() {
	d := s.newDesk(failingRenderer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg, err := d.Register(s.ctx, s.draft(), photoJPEG(50, 50))
	s.Require().NoError(err)
	s.Nil(reg.Label)
	s.NotEmpty(reg.Notification.Text)

	res := s.wait(reg.Task)
	s.NotEmpty(res.URLs[artifacts.SlotPhoto])
	s.Empty(res.URLs[artifacts.SlotDocument])
}

func (s *DeskSuite) TestConfirmPickupRendersReceipt() {
	reg, err := s.desk.Register(s.ctx, s.draft(), photoJPEG(300, 200))
	s.Require().NoError(err)
	s.wait(reg.Task)

	sig := signaturePNG()
	pickup, err := s.desk.ConfirmPickup(s.ctx, reg.Correspondence.ID, cmodels.PickupDraft{
		CollectorName:      "Carlos Lima",
		CollectorDocument:  "12.345.678-9",
		CollectorSignature: sig,
		StaffSignature:     sig,
	})
	s.Require().NoError(err)
	s.Equal(cmodels.StatusPickedUp, pickup.Correspondence.Status)
	s.True(bytes.HasPrefix(pickup.Receipt, []byte("%PDF")))
	s.Contains(pickup.Notification.Text, "Carlos Lima")
	s.Contains(pickup.Notification.Text, pickup.Evidence.VerificationCode)

	res := s.wait(pickup.Task)
	s.True(res.Complete())
	s.Empty(res.URLs[artifacts.SlotHandoffPhoto])
	s.NotEmpty(res.URLs[artifacts.SlotCollectorSignature])
	s.NotEmpty(res.URLs[artifacts.SlotReceipt])

	ev, err := s.corrStore.FindEvidence(context.Background(), pickup.Evidence.ID)
	s.Require().NoError(err)
	s.Equal(res.URLs[artifacts.SlotReceipt], ev.ReceiptURL)
	s.Equal(res.URLs[artifacts.SlotStaffSignature], ev.StaffSignatureURL)

	s.Require().Len(s.dispatcher.envelopes, 2)
	s.Equal(notification.CategoryPickup, s.dispatcher.envelopes[1].Category)
}

func (s *DeskSuite) TestConfirmPickupTwiceConflicts() {
	reg, err := s.desk.Register(s.ctx, s.draft(), nil)
	s.Require().NoError(err)
	s.wait(reg.Task)

	_, err = s.desk.ConfirmPickup(s.ctx, reg.Correspondence.ID, cmodels.PickupDraft{CollectorName: "Carlos"})
	s.Require().NoError(err)
	_, err = s.desk.ConfirmPickup(s.ctx, reg.Correspondence.ID, cmodels.PickupDraft{CollectorName: "Ana"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *DeskSuite) TestArtifactsWaitsForBackgroundWork() {
	reg, err := s.desk.Register(s.ctx, s.draft(), photoJPEG(120, 80))
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	state, err := s.desk.Artifacts(ctx, reg.Correspondence.ID)
	s.Require().NoError(err)
	s.False(state.Pending)
	s.NotEmpty(state.PhotoURL)
	s.NotEmpty(state.DocumentURL)
	s.Empty(state.ReceiptURL)
}

func (s *DeskSuite) TestArtifactsReportsFailedUploads() {
	s.blobs.fail["label.pdf"] = true
	reg, err := s.desk.Register(s.ctx, s.draft(), photoJPEG(120, 80))
	s.Require().NoError(err)

	res := s.wait(reg.Task)
	s.False(res.Complete())
	s.Equal([]artifacts.Slot{artifacts.SlotDocument}, res.Failed)

	state, err := s.desk.Artifacts(s.ctx, reg.Correspondence.ID)
	s.Require().NoError(err)
	s.NotEmpty(state.PhotoURL)
	s.Empty(state.DocumentURL)
}

func (s *DeskSuite) TestLabelRegenerates() {
	reg, err := s.desk.Register(s.ctx, s.draft(), nil)
	s.Require().NoError(err)
	s.wait(reg.Task)

	label, err := s.desk.Label(s.ctx, reg.Correspondence.ID)
	s.Require().NoError(err)
	s.True(bytes.HasPrefix(label, []byte("%PDF")))
}

func (s *DeskSuite) TestRegisterReturnsBeforeUploadsFinish() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	blobs := &blockingBlobs{memBlobs: newMemBlobs(), release: make(chan struct{})}
	runner, err := artifacts.New(blobs, NewRecordPatcher(s.corrs, s.notices), artifacts.WithLogger(logger))
	s.Require().NoError(err)
	s.runner = runner
	d := s.newDesk(receipt.NewRenderer(receipt.Brand{}, receipt.WithLogger(logger)), logger)

	returned := make(chan *Registration, 1)
	go func() {
		reg, err := d.Register(s.ctx, s.draft(), photoJPEG(400, 300))
		if err != nil {
			returned <- nil
			return
		}
		returned <- reg
	}()

	var reg *Registration
	select {
	case reg = <-returned:
	case <-time.After(5 * time.Second):
		close(blobs.release)
		s.FailNow("register waited for the blob store")
	}
	s.Require().NotNil(reg)
	s.True(bytes.HasPrefix(reg.Label, []byte("%PDF")))
	select {
	case <-reg.Task.Done():
		s.Fail("uploads finished while the blob store was still blocked")
	default:
	}

	stored, err := s.corrStore.FindByID(context.Background(), reg.Correspondence.ID)
	s.Require().NoError(err)
	s.Equal(cmodels.StatusPending, stored.Status)
	s.Empty(stored.PhotoURL)
	found, err := s.corrs.Search(s.ctx, cmodels.SearchQuery{CondominiumID: s.condo, Term: stored.Protocol})
	s.Require().NoError(err)
	s.Len(found, 1)

	short, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()
	state, err := d.Artifacts(short, reg.Correspondence.ID)
	s.Require().NoError(err)
	s.True(state.Pending)
	s.Empty(state.PhotoURL)

	close(blobs.release)
	res := s.wait(reg.Task)
	s.True(res.Complete())
	stored, err = s.corrStore.FindByID(context.Background(), reg.Correspondence.ID)
	s.Require().NoError(err)
	s.Equal(res.URLs[artifacts.SlotPhoto], stored.PhotoURL)
}

func (s *DeskSuite) TestLabelRendersPlaceholderWhenPhotoNeverArrives() {
	reg, err := s.desk.Register(s.ctx, s.draft(), photoJPEG(200, 100))
	s.Require().NoError(err)
	s.wait(reg.Task)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := &silentFetcher{done: make(chan struct{})}
	defer close(fetcher.done)
	opts := imaging.DefaultOptions()
	opts.Timeout = 150 * time.Millisecond
	renderer := &capturingRenderer{inner: receipt.NewRenderer(receipt.Brand{}, receipt.WithLogger(logger))}
	d := New(Deps{
		Correspondences: s.corrs,
		Notices:         s.notices,
		Images:          imaging.New(opts, imaging.WithFetcher(fetcher), imaging.WithLogger(logger)),
		Renderer:        renderer,
		Runner:          s.runner,
		Templates:       notification.NewTemplateService(notification.NewInMemoryTemplateStore(), notification.WithLogger(logger)),
		Composer:        notification.NewComposer("https://desk.example.com/"),
	}, WithLogger(logger))

	start := time.Now()
	label, err := d.Label(s.ctx, reg.Correspondence.ID)
	elapsed := time.Since(start)
	s.Require().NoError(err)
	s.Less(elapsed, 2*time.Second)
	s.True(bytes.HasPrefix(label, []byte("%PDF")))
	s.EqualValues(1, fetcher.calls.Load())

	doc := renderer.last()
	s.Nil(doc.Photo, "photo slot falls back to its placeholder")
	s.NotEmpty(doc.QR)
	s.Equal(reg.Correspondence.Protocol, doc.Protocol)
}

func (s *DeskSuite) TestLabelRequiresDocumentCapability() {
	reg, err := s.desk.Register(s.ctx, s.draft(), nil)
	s.Require().NoError(err)
	s.wait(reg.Task)

	resident := requestcontext.WithActor(context.Background(), id.StaffID(uuid.New()), s.condo, string(access.RoleResident), "Maria Souza")
	resident = requestcontext.WithUnit(resident, "204")
	_, err = s.desk.Label(resident, reg.Correspondence.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *DeskSuite) TestLabelUnknownRecord() {
	_, err := s.desk.Label(s.ctx, id.NewCorrespondenceID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DeskSuite) TestCreateNotice() {
	res, err := s.desk.CreateNotice(s.ctx, nmodels.Draft{
		CondominiumID:   s.condo,
		CondominiumName: "Residencial Aurora",
		Recipient:       nmodels.Recipient{BlockName: "B", Unit: "204", Name: "Maria Souza", Email: "maria@example.com"},
		Title:           "Water shutoff",
		Message:         "Water will be off on Friday from 9 to 12.",
	}, nil)
	s.Require().NoError(err)
	s.True(bytes.HasPrefix(res.Document, []byte("%PDF")))
	s.Contains(res.Notification.Text, "Water will be off")
	s.Empty(res.Notification.WhatsAppURL)

	out := s.wait(res.Task)
	s.True(out.Complete())

	stored, err := s.notices.LookupNotice(context.Background(), res.Notice.ID)
	s.Require().NoError(err)
	s.Equal(out.URLs[artifacts.SlotDocument], stored.DocumentURL)

	s.Require().Len(s.dispatcher.envelopes, 1)
	s.Equal("maria@example.com", s.dispatcher.envelopes[0].Email)
}

func (s *DeskSuite) TestNoRecipientContactSkipsDispatch() {
	d := s.draft()
	d.Recipient.Phone = ""
	reg, err := s.desk.Register(s.ctx, d, nil)
	s.Require().NoError(err)
	s.wait(reg.Task)
	s.Empty(reg.Notification.WhatsAppURL)
	s.Empty(s.dispatcher.envelopes)
}

func (s *DeskSuite) TestRecordPatcherRejectsUnknownKind() {
	p := NewRecordPatcher(s.corrs, s.notices)
	err := p.Patch(context.Background(), artifacts.Target{Kind: "parcel", ID: uuid.NewString()}, artifacts.URLs{})
	s.Error(err)
}
