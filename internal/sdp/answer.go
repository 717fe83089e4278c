package sdp

import (
	pionsdp "github.com/pion/sdp/v3"
)

// AnswerParams are the local values written into an answer.
type AnswerParams struct {
	LocalUsername string
	LocalPassword string
	ActiveMode    ActiveMode
	Fingerprint   string
}

// CreateAnswer returns an answer built from a deep copy of offer. Every
// media section is kept, in order, with these rewrites:
//
//	sendonly, sendrecv   -> recvonly
//	ice-ufrag, ice-pwd   -> local credentials
//	fingerprint          -> sha-256 <local fingerprint>
//	setup                -> complementary role
//
// Everything else is copied verbatim, with one exception: the offer's
// candidate and end-of-candidates lines are dropped. They carry the
// browser's own addresses, and the gateway's candidates are sent as
// separate signaling messages instead. The offer is not modified.
func CreateAnswer(offer *pionsdp.SessionDescription, params AnswerParams) *pionsdp.SessionDescription {
	answer := cloneSession(offer)

	answer.Attributes = rewriteAttributes(answer.Attributes, params)
	for _, media := range answer.MediaDescriptions {
		media.Attributes = rewriteAttributes(media.Attributes, params)
	}

	return answer
}

func rewriteAttributes(attrs []pionsdp.Attribute, params AnswerParams) []pionsdp.Attribute {
	out := make([]pionsdp.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		switch attr.Key {
		case AttrSendOnly, AttrSendRecv:
			out = append(out, pionsdp.NewPropertyAttribute(AttrRecvOnly))
		case AttrICEUfrag:
			out = append(out, pionsdp.NewAttribute(AttrICEUfrag, params.LocalUsername))
		case AttrICEPwd:
			out = append(out, pionsdp.NewAttribute(AttrICEPwd, params.LocalPassword))
		case AttrFingerprint:
			out = append(out, pionsdp.NewAttribute(AttrFingerprint, formatFingerprint(params.Fingerprint)))
		case AttrSetup:
			out = append(out, pionsdp.NewAttribute(AttrSetup, params.ActiveMode.AnswerSetup()))
		case AttrCandidate, AttrEndOfCandidates:
			// dropped
		default:
			out = append(out, attr)
		}
	}
	return out
}

func cloneSession(s *pionsdp.SessionDescription) *pionsdp.SessionDescription {
	c := *s

	c.SessionInformation = clonePtr(s.SessionInformation)
	if s.URI != nil {
		uri := *s.URI
		c.URI = &uri
	}
	c.EmailAddress = clonePtr(s.EmailAddress)
	c.PhoneNumber = clonePtr(s.PhoneNumber)
	c.ConnectionInformation = cloneConnectionInformation(s.ConnectionInformation)
	c.Bandwidth = cloneSlice(s.Bandwidth)
	c.EncryptionKey = clonePtr(s.EncryptionKey)
	c.Attributes = cloneSlice(s.Attributes)

	c.TimeDescriptions = nil
	for _, td := range s.TimeDescriptions {
		copied := pionsdp.TimeDescription{Timing: td.Timing}
		for _, rt := range td.RepeatTimes {
			copied.RepeatTimes = append(copied.RepeatTimes, pionsdp.RepeatTime{
				Interval: rt.Interval,
				Duration: rt.Duration,
				Offsets:  cloneSlice(rt.Offsets),
			})
		}
		c.TimeDescriptions = append(c.TimeDescriptions, copied)
	}
	c.TimeZones = cloneSlice(s.TimeZones)

	c.MediaDescriptions = make([]*pionsdp.MediaDescription, 0, len(s.MediaDescriptions))
	for _, media := range s.MediaDescriptions {
		c.MediaDescriptions = append(c.MediaDescriptions, cloneMedia(media))
	}

	return &c
}

func cloneMedia(m *pionsdp.MediaDescription) *pionsdp.MediaDescription {
	c := *m

	c.MediaName.Port.Range = clonePtr(m.MediaName.Port.Range)
	c.MediaName.Protos = cloneSlice(m.MediaName.Protos)
	c.MediaName.Formats = cloneSlice(m.MediaName.Formats)
	c.MediaTitle = clonePtr(m.MediaTitle)
	c.ConnectionInformation = cloneConnectionInformation(m.ConnectionInformation)
	c.Bandwidth = cloneSlice(m.Bandwidth)
	c.EncryptionKey = clonePtr(m.EncryptionKey)
	c.Attributes = cloneSlice(m.Attributes)

	return &c
}

func cloneConnectionInformation(ci *pionsdp.ConnectionInformation) *pionsdp.ConnectionInformation {
	if ci == nil {
		return nil
	}
	c := *ci
	if ci.Address != nil {
		addr := *ci.Address
		addr.TTL = clonePtr(ci.Address.TTL)
		addr.Range = clonePtr(ci.Address.Range)
		c.Address = &addr
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
