package pidf

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"UCEGo/global"
)

// RCS service ids used inside presence tuples.
const (
	ServiceIDMmTel        string = "org.3gpp.urn:urn-7:3gpp-service.ims.icsi.mmtel"
	ServiceIDChat         string = "org.openmobilealliance:ChatSession"
	ServiceIDFileTransfer string = "org.openmobilealliance:File-Transfer-HTTP"
)

const (
	nsPidf     string = "urn:ietf:params:xml:ns:pidf"
	nsOmaPres  string = "urn:oma:xml:prs:pidf:oma-pres"
	nsPidfCaps string = "urn:ietf:params:xml:ns:pidf:caps"
)

// presence is the RFC 3863 document with OMA presence and caps extensions.
// Local-name matching keeps the decoder tolerant of prefix choices.
type presence struct {
	XMLName xml.Name `xml:"presence"`
	Entity  string   `xml:"entity,attr"`
	Tuples  []tuple  `xml:"tuple"`
}

type tuple struct {
	ID      string `xml:"id,attr"`
	Status  status `xml:"status"`
	Service struct {
		ServiceID   string `xml:"service-id"`
		Version     string `xml:"version"`
		Description string `xml:"description"`
	} `xml:"service-description"`
	ServCaps *servCaps `xml:"servcaps"`
	Contact  string    `xml:"contact"`
}

type status struct {
	Basic string `xml:"basic"`
}

type servCaps struct {
	Audio bool `xml:"audio"`
	Video bool `xml:"video"`
}

// Decode parses a presence document into the entity URI and its service tuples.
func Decode(body string) (string, []global.PresenceTuple, error) {
	var doc presence
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return "", nil, fmt.Errorf("malformed presence document: %w", err)
	}
	if doc.Entity == "" {
		return "", nil, fmt.Errorf("presence document without entity attribute")
	}

	tuples := make([]global.PresenceTuple, 0, len(doc.Tuples))
	for _, t := range doc.Tuples {
		pt := global.PresenceTuple{
			Basic:          normalizeBasic(t.Status.Basic),
			ServiceID:      strings.TrimSpace(t.Service.ServiceID),
			ServiceVersion: strings.TrimSpace(t.Service.Version),
			Description:    strings.TrimSpace(t.Service.Description),
			ContactURI:     global.NormalizeURI(t.Contact),
		}
		if t.ServCaps != nil {
			pt.AudioCapable = t.ServCaps.Audio
			pt.VideoCapable = t.ServCaps.Video
		}
		tuples = append(tuples, pt)
	}

	return global.NormalizeURI(doc.Entity), tuples, nil
}

// Encode renders the device capability tuples as a presence document.
// Returns "" when there is nothing to publish.
func Encode(entity string, tuples []global.PresenceTuple) string {
	if entity == "" || len(tuples) == 0 {
		return ""
	}

	now := time.Now().UTC().Format(time.RFC3339)

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf(`<presence xmlns=%q xmlns:op=%q xmlns:caps=%q entity=%q>`, nsPidf, nsOmaPres, nsPidfCaps, entity))
	sb.WriteString("\n")

	for i, t := range tuples {
		sb.WriteString(fmt.Sprintf("  <tuple id=\"a%d\">\n", i))
		sb.WriteString(fmt.Sprintf("    <status><basic>%s</basic></status>\n", escape(normalizeBasic(t.Basic))))
		sb.WriteString("    <op:service-description>\n")
		sb.WriteString(fmt.Sprintf("      <op:service-id>%s</op:service-id>\n", escape(t.ServiceID)))
		sb.WriteString(fmt.Sprintf("      <op:version>%s</op:version>\n", escape(defaultVersion(t.ServiceVersion))))
		if t.Description != "" {
			sb.WriteString(fmt.Sprintf("      <op:description>%s</op:description>\n", escape(t.Description)))
		}
		sb.WriteString("    </op:service-description>\n")
		if t.AudioCapable || t.VideoCapable {
			sb.WriteString("    <caps:servcaps>\n")
			sb.WriteString(fmt.Sprintf("      <caps:audio>%t</caps:audio>\n", t.AudioCapable))
			sb.WriteString(fmt.Sprintf("      <caps:video>%t</caps:video>\n", t.VideoCapable))
			sb.WriteString("    </caps:servcaps>\n")
		}
		if t.ContactURI != "" {
			sb.WriteString(fmt.Sprintf("    <contact>%s</contact>\n", escape(t.ContactURI)))
		}
		sb.WriteString(fmt.Sprintf("    <timestamp>%s</timestamp>\n", now))
		sb.WriteString("  </tuple>\n")
	}

	sb.WriteString("</presence>")
	return sb.String()
}

func normalizeBasic(basic string) string {
	if global.ASCIIToLower(strings.TrimSpace(basic)) == global.BasicClosed {
		return global.BasicClosed
	}
	return global.BasicOpen
}

func defaultVersion(v string) string {
	if v == "" {
		return "1.0"
	}
	return v
}

func escape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
