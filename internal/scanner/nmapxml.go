package scanner

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Minimal view of nmap's -oX output, covering the elements the pipeline
// reads. Unknown elements are ignored by the decoder.
type nmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Hosts   []nmapHost `xml:"host"`
}

type nmapHost struct {
	Status    nmapStatus     `xml:"status"`
	Addresses []nmapAddress  `xml:"address"`
	Hostnames []nmapHostname `xml:"hostnames>hostname"`
	Times     *nmapTimes     `xml:"times"`
	Ports     []nmapPort     `xml:"ports>port"`
	OSMatches []nmapOSMatch  `xml:"os>osmatch"`
}

type nmapStatus struct {
	State string `xml:"state,attr"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
	Vendor   string `xml:"vendor,attr"`
}

type nmapHostname struct {
	Name string `xml:"name,attr"`
}

type nmapTimes struct {
	SRTT string `xml:"srtt,attr"`
}

type nmapPort struct {
	Protocol string        `xml:"protocol,attr"`
	PortID   int           `xml:"portid,attr"`
	State    nmapPortState `xml:"state"`
	Service  *nmapService  `xml:"service"`
	Scripts  []nmapScript  `xml:"script"`
}

type nmapPortState struct {
	State string `xml:"state,attr"`
}

type nmapService struct {
	Name      string   `xml:"name,attr"`
	Product   string   `xml:"product,attr"`
	Version   string   `xml:"version,attr"`
	ExtraInfo string   `xml:"extrainfo,attr"`
	CPE       []string `xml:"cpe"`
}

type nmapScript struct {
	ID     string `xml:"id,attr"`
	Output string `xml:"output,attr"`
}

type nmapOSMatch struct {
	Name     string        `xml:"name,attr"`
	Accuracy string        `xml:"accuracy,attr"`
	Classes  []nmapOSClass `xml:"osclass"`
}

type nmapOSClass struct {
	OSFamily string   `xml:"osfamily,attr"`
	CPE      []string `xml:"cpe"`
}

func parseNmapXML(doc string) (*nmapRun, error) {
	var run nmapRun
	if err := xml.Unmarshal([]byte(doc), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (h nmapHost) address(addrType string) *nmapAddress {
	for i := range h.Addresses {
		if h.Addresses[i].AddrType == addrType {
			return &h.Addresses[i]
		}
	}
	return nil
}

func (h nmapHost) hostname() string {
	if len(h.Hostnames) > 0 {
		return h.Hostnames[0].Name
	}
	return ""
}

// srttMillis converts nmap's microsecond srtt attribute to milliseconds.
func (h nmapHost) srttMillis() *int {
	if h.Times == nil || h.Times.SRTT == "" {
		return nil
	}
	us, err := strconv.Atoi(strings.TrimSpace(h.Times.SRTT))
	if err != nil {
		return nil
	}
	ms := us / 1000
	return &ms
}
