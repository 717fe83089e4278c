package sdp

import (
	"errors"
	"strings"
	"testing"

	pionsdp "github.com/pion/sdp/v3"
)

const remoteFingerprint = "AA:BB:CC:DD:EE:FF:00:11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00:11:22:33:44:55:66:77:88:99"

const localFingerprint = "11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00:11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:00"

func offerWithSetup(setup string) string {
	return "v=0\r\n" +
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"a=group:BUNDLE 0 1\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=rtcp:9 IN IP4 0.0.0.0\r\n" +
		"a=ice-ufrag:abc\r\n" +
		"a=ice-pwd:xyz123456789\r\n" +
		"a=fingerprint:sha-256 " + strings.ToLower(remoteFingerprint) + "\r\n" +
		"a=setup:" + setup + "\r\n" +
		"a=mid:0\r\n" +
		"a=sendrecv\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"a=candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host\r\n" +
		"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"b=AS:2500\r\n" +
		"a=ice-ufrag:abc\r\n" +
		"a=ice-pwd:xyz123456789\r\n" +
		"a=fingerprint:sha-256 " + strings.ToLower(remoteFingerprint) + "\r\n" +
		"a=setup:" + setup + "\r\n" +
		"a=mid:1\r\n" +
		"a=sendonly\r\n" +
		"a=rtpmap:96 VP8/90000\r\n" +
		"a=end-of-candidates\r\n"
}

func mustParse(t *testing.T, raw string) *pionsdp.SessionDescription {
	t.Helper()
	desc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return desc
}

func attrValues(attrs []pionsdp.Attribute, key string) []string {
	var values []string
	for _, a := range attrs {
		if a.Key == key {
			values = append(values, a.Value)
		}
	}
	return values
}

func hasAttr(attrs []pionsdp.Attribute, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name     string
		setup    string
		wantMode ActiveMode
	}{
		{"actpass", "actpass", ActivePassive},
		{"active", "active", Active},
		{"passive", "passive", Passive},
		{"unknown value is lenient", "holdconn", ActivePassive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer := mustParse(t, offerWithSetup(tt.setup))

			cfg, err := ParseConfig(offer, localFingerprint, nil)
			if err != nil {
				t.Fatalf("ParseConfig() error = %v", err)
			}
			if cfg.ActiveMode != tt.wantMode {
				t.Errorf("ActiveMode = %v, want %v", cfg.ActiveMode, tt.wantMode)
			}
			if cfg.RemoteICEUsername != "abc" {
				t.Errorf("RemoteICEUsername = %q, want abc", cfg.RemoteICEUsername)
			}
			if cfg.RemoteICEPassword != "xyz123456789" {
				t.Errorf("RemoteICEPassword = %q, want xyz123456789", cfg.RemoteICEPassword)
			}
			if cfg.Fingerprint != localFingerprint {
				t.Errorf("Fingerprint = %q, want local fingerprint", cfg.Fingerprint)
			}
			if cfg.RemoteFingerprint != remoteFingerprint {
				t.Errorf("RemoteFingerprint = %q, want %q", cfg.RemoteFingerprint, remoteFingerprint)
			}
		})
	}
}

func TestParseConfigMissingAttributes(t *testing.T) {
	base := offerWithSetup("actpass")

	tests := []struct {
		name    string
		drop    string
		wantErr error
	}{
		{"missing ufrag", "a=ice-ufrag:abc\r\n", ErrMissingICEUsername},
		{"missing pwd", "a=ice-pwd:xyz123456789\r\n", ErrMissingICEPassword},
		{"missing setup", "a=setup:actpass\r\n", ErrMissingSetup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer := mustParse(t, strings.ReplaceAll(base, tt.drop, ""))

			_, err := ParseConfig(offer, localFingerprint, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseConfig() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseConfigSessionLevelFallback(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"a=ice-ufrag:sess\r\n" +
		"a=ice-pwd:sessionpassword\r\n" +
		"a=setup:passive\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=ice-ufrag:media\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"

	cfg, err := ParseConfig(mustParse(t, raw), localFingerprint, nil)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.RemoteICEUsername != "media" {
		t.Errorf("RemoteICEUsername = %q, want media-level value", cfg.RemoteICEUsername)
	}
	if cfg.RemoteICEPassword != "sessionpassword" {
		t.Errorf("RemoteICEPassword = %q, want session-level value", cfg.RemoteICEPassword)
	}
	if cfg.ActiveMode != Passive {
		t.Errorf("ActiveMode = %v, want passive", cfg.ActiveMode)
	}
	if cfg.RemoteFingerprint != "" {
		t.Errorf("RemoteFingerprint = %q, want empty", cfg.RemoteFingerprint)
	}
}

func TestActiveModeRoles(t *testing.T) {
	tests := []struct {
		mode       ActiveMode
		answer     string
		dialsICE   bool
		dtlsClient bool
	}{
		{Active, "passive", true, false},
		{Passive, "active", false, true},
		{ActivePassive, "active", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			if got := tt.mode.AnswerSetup(); got != tt.answer {
				t.Errorf("AnswerSetup() = %q, want %q", got, tt.answer)
			}
			if got := tt.mode.DialsICE(); got != tt.dialsICE {
				t.Errorf("DialsICE() = %v, want %v", got, tt.dialsICE)
			}
			if got := tt.mode.DTLSClient(); got != tt.dtlsClient {
				t.Errorf("DTLSClient() = %v, want %v", got, tt.dtlsClient)
			}
		})
	}
}

func TestCreateAnswer(t *testing.T) {
	tests := []struct {
		setup     string
		wantSetup string
	}{
		{"actpass", "active"},
		{"active", "passive"},
		{"passive", "active"},
	}

	for _, tt := range tests {
		t.Run(tt.setup, func(t *testing.T) {
			offer := mustParse(t, offerWithSetup(tt.setup))
			cfg, err := ParseConfig(offer, localFingerprint, nil)
			if err != nil {
				t.Fatalf("ParseConfig() error = %v", err)
			}

			answer := CreateAnswer(offer, AnswerParams{
				LocalUsername: "localufrag",
				LocalPassword: "localpassword1234567890",
				ActiveMode:    cfg.ActiveMode,
				Fingerprint:   localFingerprint,
			})

			if len(answer.MediaDescriptions) != len(offer.MediaDescriptions) {
				t.Fatalf("answer has %d media sections, want %d", len(answer.MediaDescriptions), len(offer.MediaDescriptions))
			}
			if answer.Origin != offer.Origin {
				t.Errorf("Origin = %+v, want %+v", answer.Origin, offer.Origin)
			}

			for i, media := range answer.MediaDescriptions {
				if got, want := media.MediaName.Media, offer.MediaDescriptions[i].MediaName.Media; got != want {
					t.Errorf("media %d = %q, want %q", i, got, want)
				}
				if got := attrValues(media.Attributes, AttrSetup); len(got) != 1 || got[0] != tt.wantSetup {
					t.Errorf("media %d setup = %v, want %q", i, got, tt.wantSetup)
				}
				if got := attrValues(media.Attributes, AttrICEUfrag); len(got) != 1 || got[0] != "localufrag" {
					t.Errorf("media %d ice-ufrag = %v", i, got)
				}
				if got := attrValues(media.Attributes, AttrICEPwd); len(got) != 1 || got[0] != "localpassword1234567890" {
					t.Errorf("media %d ice-pwd = %v", i, got)
				}
				if got := attrValues(media.Attributes, AttrFingerprint); len(got) != 1 || got[0] != "sha-256 "+localFingerprint {
					t.Errorf("media %d fingerprint = %v", i, got)
				}
				if !hasAttr(media.Attributes, AttrRecvOnly) {
					t.Errorf("media %d has no recvonly", i)
				}
				for _, key := range []string{AttrSendRecv, AttrSendOnly, AttrCandidate, AttrEndOfCandidates} {
					if hasAttr(media.Attributes, key) {
						t.Errorf("media %d still has a=%s", i, key)
					}
				}
				if got := attrValues(media.Attributes, "mid"); len(got) != 1 {
					t.Errorf("media %d mid = %v, want passthrough", i, got)
				}
			}

			if _, err := answer.Marshal(); err != nil {
				t.Errorf("Marshal() error = %v", err)
			}
		})
	}
}

func TestCreateAnswerLeavesOfferUntouched(t *testing.T) {
	offer := mustParse(t, offerWithSetup("actpass"))
	before, err := offer.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	answer := CreateAnswer(offer, AnswerParams{
		LocalUsername: "u",
		LocalPassword: "p",
		ActiveMode:    ActivePassive,
		Fingerprint:   localFingerprint,
	})
	answer.MediaDescriptions[0].MediaName.Formats[0] = "0"
	answer.MediaDescriptions[1].Bandwidth[0].Bandwidth = 1

	after, err := offer.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("offer changed:\n%s\nwant:\n%s", after, before)
	}
}

func TestCreateAnswerSessionLevelRewrite(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"a=ice-ufrag:sess\r\n" +
		"a=ice-pwd:sessionpassword\r\n" +
		"a=setup:actpass\r\n" +
		"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
		"c=IN IP4 0.0.0.0\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n"

	answer := CreateAnswer(mustParse(t, raw), AnswerParams{
		LocalUsername: "local",
		LocalPassword: "localpw",
		ActiveMode:    ActivePassive,
		Fingerprint:   localFingerprint,
	})

	if got := attrValues(answer.Attributes, AttrICEUfrag); len(got) != 1 || got[0] != "local" {
		t.Errorf("session ice-ufrag = %v", got)
	}
	if got := attrValues(answer.Attributes, AttrSetup); len(got) != 1 || got[0] != "active" {
		t.Errorf("session setup = %v", got)
	}
}
