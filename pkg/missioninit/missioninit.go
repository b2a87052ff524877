// Package missioninit holds the MissionInit document that configures one
// mission run, and its XML wire form.
package missioninit

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
)

// RootElement is the local name every MissionInit document starts with.
const RootElement = "MissionInit"

// ErrNotMissionInit means the text is not shaped like a MissionInit document
// at all, as opposed to a MissionInit that failed to decode.
var ErrNotMissionInit = errors.New("not a MissionInit document")

// AgentConnection describes where the controlling agent listens.
type AgentConnection struct {
	ClientIPAddress          string `xml:"ClientIPAddress"`
	ClientMissionControlPort int    `xml:"ClientMissionControlPort"`
	AgentIPAddress           string `xml:"AgentIPAddress"`
	AgentMissionControlPort  int    `xml:"AgentMissionControlPort"`
	AgentVideoPort           int    `xml:"AgentVideoPort"`
	AgentDepthPort           int    `xml:"AgentDepthPort"`
	AgentLuminancePort       int    `xml:"AgentLuminancePort"`
	AgentColourMapPort       int    `xml:"AgentColourMapPort"`
}

// ServerConnection is the address of the server hosting a multi-party
// mission. Empty until the owning client has published it.
type ServerConnection struct {
	Address string `xml:"address,attr"`
	Port    int    `xml:"port,attr"`
}

// Known reports whether the owning server address has been filled in.
func (s *ServerConnection) Known() bool {
	return s != nil && s.Address != "" && s.Port > 0
}

// String renders host:port.
func (s *ServerConnection) String() string {
	return s.Address + ":" + strconv.Itoa(s.Port)
}

// Body is the mission description. Its schema is owned by the host, so it
// is carried as raw XML.
type Body struct {
	Inner []byte `xml:",innerxml"`
}

// MissionInit configures one mission run.
type MissionInit struct {
	XMLName         xml.Name          `xml:"MissionInit"`
	PlatformVersion string            `xml:"PlatformVersion,attr"`
	ExperimentID    string            `xml:"ExperimentUID"`
	ClientRole      int               `xml:"ClientRole"`
	Agent           AgentConnection   `xml:"ClientAgentConnection"`
	Server          *ServerConnection `xml:"MinecraftServerConnection,omitempty"`
	Mission         Body              `xml:"Mission"`
}

// AgentAddress returns host:port of the agent's mission control listener.
func (m *MissionInit) AgentAddress() string {
	return m.Agent.AgentIPAddress + ":" + strconv.Itoa(m.Agent.AgentMissionControlPort)
}

// Codec decodes and encodes MissionInit documents.
type Codec struct{}

// Decode parses text. It returns an error wrapping ErrNotMissionInit when
// the first element is not a MissionInit.
func (Codec) Decode(text string) (*MissionInit, error) {
	if !isMissionInit(text) {
		return nil, ErrNotMissionInit
	}
	var m MissionInit
	if err := xml.Unmarshal([]byte(text), &m); err != nil {
		return nil, fmt.Errorf("decode MissionInit: %w", err)
	}
	if m.ExperimentID == "" {
		return nil, errors.New("decode MissionInit: missing ExperimentUID")
	}
	return &m, nil
}

// Encode renders m as XML.
func (Codec) Encode(m *MissionInit) (string, error) {
	if m == nil {
		return "", errors.New("encode MissionInit: nil document")
	}
	b, err := xml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode MissionInit: %w", err)
	}
	return string(b), nil
}

func isMissionInit(text string) bool {
	d := xml.NewDecoder(bytes.NewReader([]byte(text)))
	for {
		tok, err := d.Token()
		if err != nil {
			// io.EOF or garbage before any element
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t.Name.Local == RootElement
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return false
			}
		}
	}
}

// SameMission reports whether a and b describe the same mission. It always
// returns true: document equality is not checked, so a re-sent MissionInit
// for a different mission is treated as a match.
func SameMission(a, b *MissionInit) bool {
	return true
}
