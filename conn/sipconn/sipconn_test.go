package sipconn

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"

	"UCEGo/conn"
)

func TestParseSubscriptionState(t *testing.T) {
	t.Parallel()

	state, reason, retryAfter := parseSubscriptionState(sip.NewHeader("Subscription-State", "active;expires=3600"))
	require.Equal(t, "active", state)
	require.Empty(t, reason)
	require.Zero(t, retryAfter)

	state, reason, retryAfter = parseSubscriptionState(sip.NewHeader("Subscription-State", "terminated;reason=timeout"))
	require.Equal(t, "terminated", state)
	require.Equal(t, "timeout", reason)
	require.Zero(t, retryAfter)

	state, reason, retryAfter = parseSubscriptionState(sip.NewHeader("Subscription-State", "Terminated; Reason=GIVEUP; retry-after=120"))
	require.Equal(t, "terminated", state)
	require.Equal(t, "giveup", reason)
	require.EqualValues(t, 120, retryAfter)

	state, reason, retryAfter = parseSubscriptionState(nil)
	require.Empty(t, state)
	require.Empty(t, reason)
	require.Zero(t, retryAfter)
}

func TestContactFeatureTags(t *testing.T) {
	t.Parallel()

	h := sip.NewHeader("Contact", `<sip:alice@192.0.2.10:5060;transport=udp>;+g.3gpp.icsi-ref="urn%3Aurn-7%3A3gpp-service.ims.icsi.mmtel";video;expires=3600;q=0.5`)
	require.Equal(t, []string{`+g.3gpp.icsi-ref="urn%3Aurn-7%3A3gpp-service.ims.icsi.mmtel"`, "video"}, contactFeatureTags(h))

	require.Nil(t, contactFeatureTags(sip.NewHeader("Contact", "sip:alice@192.0.2.10")))
	require.Nil(t, contactFeatureTags(nil))
	require.Nil(t, contactFeatureTags(sip.NewHeader("Contact", "<sip:alice@192.0.2.10>")))
}

func TestParseReasonHeader(t *testing.T) {
	t.Parallel()

	cause, text := parseReasonHeader(sip.NewHeader("Reason", `SIP;cause=580;text="Precondition Failure"`))
	require.Equal(t, 580, cause)
	require.Equal(t, "Precondition Failure", text)

	cause, text = parseReasonHeader(nil)
	require.Zero(t, cause)
	require.Empty(t, text)
}

func TestRetryAfterMillis(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, 30000, retryAfterMillis(sip.NewHeader("Retry-After", "30")))
	require.EqualValues(t, 30000, retryAfterMillis(sip.NewHeader("Retry-After", "30 (scheduled maintenance)")))
	require.Zero(t, retryAfterMillis(sip.NewHeader("Retry-After", "soon")))
	require.Zero(t, retryAfterMillis(nil))
}

func TestResourceListBody(t *testing.T) {
	t.Parallel()

	body := resourceListBody([]string{"sip:alice@example.com", "sip:bob@example.com"})
	require.Contains(t, body, `xmlns="urn:ietf:params:xml:ns:resource-lists"`)
	require.Contains(t, body, `<entry uri="sip:alice@example.com"/>`)
	require.Contains(t, body, `<entry uri="sip:bob@example.com"/>`)
}

func TestRlmiTerminations(t *testing.T) {
	t.Parallel()

	rlmi := `<?xml version="1.0"?>
<list xmlns="urn:ietf:params:xml:ns:rlmi" uri="sip:self@example.com" version="1" fullState="true">
  <resource uri="sip:alice@example.com">
    <instance id="1" state="terminated" reason="rejected"/>
  </resource>
  <resource uri="sip:bob@example.com">
    <instance id="2" state="active"/>
  </resource>
</list>`

	out := rlmiTerminations([]byte(rlmi))
	require.Equal(t, []conn.TerminatedResource{{URI: "sip:alice@example.com", Reason: "rejected"}}, out)

	require.Nil(t, rlmiTerminations([]byte("not xml at all <<<")))
}

func TestMultipartBodies(t *testing.T) {
	t.Parallel()

	pidf := `<?xml version="1.0"?><presence entity="sip:alice@example.com"/>`
	rlmi := `<list xmlns="urn:ietf:params:xml:ns:rlmi"><resource uri="sip:bob@example.com"><instance id="1" state="terminated" reason="noresource"/></resource></list>`

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": []string{contentTypeRlmi}})
	require.NoError(t, err)
	_, err = pw.Write([]byte(rlmi))
	require.NoError(t, err)
	pw, err = mw.CreatePart(textproto.MIMEHeader{"Content-Type": []string{contentTypePidf}})
	require.NoError(t, err)
	_, err = pw.Write([]byte(pidf))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	pidfs, terminated := multipartBodies(buf.Bytes(), mw.Boundary())
	require.Equal(t, []string{pidf}, pidfs)
	require.Equal(t, []conn.TerminatedResource{{URI: "sip:bob@example.com", Reason: "noresource"}}, terminated)

	pidfs, terminated = multipartBodies([]byte("data"), "")
	require.Nil(t, pidfs)
	require.Nil(t, terminated)
}

func TestNotifyBodies(t *testing.T) {
	t.Parallel()

	var recipient sip.Uri
	require.NoError(t, sip.ParseUri("sip:self@example.com", &recipient))

	pidf := `<?xml version="1.0"?><presence entity="sip:alice@example.com"/>`
	req := sip.NewRequest(sip.NOTIFY, recipient)
	ct := sip.ContentTypeHeader(contentTypePidf)
	req.AppendHeader(&ct)
	req.SetBody([]byte(pidf))

	pidfs, terminated := notifyBodies(req)
	require.Equal(t, []string{pidf}, pidfs)
	require.Empty(t, terminated)

	empty := sip.NewRequest(sip.NOTIFY, recipient)
	pidfs, terminated = notifyBodies(empty)
	require.Nil(t, pidfs)
	require.Nil(t, terminated)
}
