package codec

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
)

// Passthrough serves capture drivers that deliver pre-encoded H.264 access
// units: it never encodes, it only classifies. Keyframe requests are
// forwarded to the capture driver when it can honor them.
type Passthrough struct {
	keyframes ports.KeyframeRequester
}

// NewPassthrough wraps an optional capture-side keyframe requester. Pass
// nil when the driver cannot produce keyframes on demand.
func NewPassthrough(keyframes ports.KeyframeRequester) *Passthrough {
	return &Passthrough{keyframes: keyframes}
}

// Encode rejects raw frames: a passthrough pipeline has no pixel encoder.
func (p *Passthrough) Encode(frame domain.PlanarFrame) (domain.AccessUnit, error) {
	return domain.AccessUnit{}, fmt.Errorf("%w: passthrough codec cannot encode raw %s frames",
		domain.ErrUnsupportedPixelFormat, domain.PixelFormatI420)
}

// Classify parses an Annex-B buffer into an access unit, detecting whether
// it carries an IDR slice.
func (p *Passthrough) Classify(data []byte) (domain.AccessUnit, error) {
	var annexB h264.AnnexB
	if err := annexB.Unmarshal(data); err != nil {
		return domain.AccessUnit{}, fmt.Errorf("failed to parse access unit: %w", err)
	}
	au := domain.AccessUnit{Data: data}
	for _, nalu := range annexB {
		if len(nalu) > 0 && h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeIDR {
			au.Keyframe = true
			break
		}
	}
	return au, nil
}

// ForceKeyframe asks the capture driver for an IDR at the next opportunity.
func (p *Passthrough) ForceKeyframe() {
	if p.keyframes != nil {
		p.keyframes.ForceKeyframe()
	}
}

// Close releases nothing; the passthrough codec owns no resources.
func (p *Passthrough) Close() error {
	return nil
}
