package writeback

import (
	"bytes"
	"fmt"

	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const explicitVRLittleEndian = "1.2.840.10008.1.2.1"

// DatasetSerializer is the default Serializer. It encodes the scalar
// attributes of a naturalized dataset as an explicit-VR little-endian
// DICOM stream. Nested sequences are carried in the metadata row, not the
// binary, so they are skipped here.
type DatasetSerializer struct{}

// NewDatasetSerializer returns the default serializer
func NewDatasetSerializer() *DatasetSerializer {
	return &DatasetSerializer{}
}

// Serialize encodes the dataset to a DICOM binary blob
func (s *DatasetSerializer) Serialize(ds models.Dataset) ([]byte, error) {
	sopClassUID := ds.String("SOPClassUID")
	sopInstanceUID := ds.String("SOPInstanceUID")
	if sopClassUID == "" || sopInstanceUID == "" {
		return nil, fmt.Errorf("dataset is missing SOPClassUID or SOPInstanceUID")
	}

	elements := make([]*dicom.Element, 0, len(ds)+3)

	metaPairs := []struct {
		t tag.Tag
		v string
	}{
		{tag.MediaStorageSOPClassUID, sopClassUID},
		{tag.MediaStorageSOPInstanceUID, sopInstanceUID},
		{tag.TransferSyntaxUID, explicitVRLittleEndian},
	}
	for _, pair := range metaPairs {
		elem, err := dicom.NewElement(pair.t, []string{pair.v})
		if err != nil {
			return nil, fmt.Errorf("failed to build meta element %v: %w", pair.t, err)
		}
		elements = append(elements, elem)
	}

	for key, value := range ds {
		info, err := tag.FindByName(key)
		if err != nil {
			continue
		}
		elem, err := newScalarElement(info, value)
		if err != nil || elem == nil {
			continue
		}
		elements = append(elements, elem)
	}

	var buf bytes.Buffer
	if err := dicom.Write(&buf, dicom.Dataset{Elements: elements}, dicom.SkipVRVerification()); err != nil {
		return nil, fmt.Errorf("failed to write dataset: %w", err)
	}
	return buf.Bytes(), nil
}

func newScalarElement(info tag.Info, value any) (*dicom.Element, error) {
	switch info.VR {
	case "SQ", "OB", "OW", "OF", "OD", "UN":
		return nil, nil
	case "US", "UL", "SS", "SL":
		switch v := value.(type) {
		case int:
			return dicom.NewElement(info.Tag, []int{v})
		case float64:
			return dicom.NewElement(info.Tag, []int{int(v)})
		}
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		return dicom.NewElement(info.Tag, []string{v})
	case float64:
		return dicom.NewElement(info.Tag, []string{fmt.Sprintf("%v", v)})
	case int:
		return dicom.NewElement(info.Tag, []string{fmt.Sprintf("%d", v)})
	case []any:
		values := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, nil
			}
			values = append(values, s)
		}
		return dicom.NewElement(info.Tag, values)
	}
	return nil, nil
}
