package directory

import (
	"encoding/xml"

	"speedtester/pkg/models"
)

// settingsDocument is the shape shared by the primary configuration document and
// the mirror server lists. Mirrors only fill Servers.
type settingsDocument struct {
	XMLName      xml.Name      `xml:"settings"`
	Client       clientElement `xml:"client"`
	ServerConfig struct {
		IgnoreIDs string `xml:"ignoreids,attr"`
	} `xml:"server-config"`
	Servers []serverElement `xml:"servers>server"`
}

type clientElement struct {
	IP  string  `xml:"ip,attr"`
	ISP string  `xml:"isp,attr"`
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
}

type serverElement struct {
	ID          string  `xml:"id,attr"`
	URL         string  `xml:"url,attr"`
	Lat         float64 `xml:"lat,attr"`
	Lon         float64 `xml:"lon,attr"`
	Name        string  `xml:"name,attr"`
	Country     string  `xml:"country,attr"`
	CountryCode string  `xml:"cc,attr"`
	Sponsor     string  `xml:"sponsor,attr"`
	Host        string  `xml:"host,attr"`
}

func parseSettings(data []byte) (settingsDocument, error) {
	var doc settingsDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return settingsDocument{}, err
	}
	return doc, nil
}

func (d settingsDocument) client() models.Client {
	return models.Client{
		IP:        d.Client.IP,
		ISP:       d.Client.ISP,
		Lat:       d.Client.Lat,
		Lon:       d.Client.Lon,
		IgnoreIDs: models.ParseIgnoreIDs(d.ServerConfig.IgnoreIDs),
	}
}

func (d settingsDocument) servers() []models.Server {
	servers := make([]models.Server, 0, len(d.Servers))
	for _, s := range d.Servers {
		servers = append(servers, models.Server{
			ID:          s.ID,
			URL:         s.URL,
			Lat:         s.Lat,
			Lon:         s.Lon,
			Name:        s.Name,
			Country:     s.Country,
			CountryCode: s.CountryCode,
			Sponsor:     s.Sponsor,
			Host:        s.Host,
			Latency:     models.LatencyUnset,
		})
	}
	return servers
}
