////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"encoding/json"
	"fmt"
	"time"
)

// Object is the envelope written for every key: the schema version of the
// payload, when it was written and the serialized payload itself.
type Object struct {
	Version   uint64
	Timestamp time.Time
	Data      []byte
}

// Unmarshal deserializes an Object from a byte slice so it can be loaded from
// an ekv.KeyValue.
func (v *Object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, v)
}

// Marshal serializes an Object so it can be stored in an ekv.KeyValue. Every
// field has a simple type, so a failure here means memory is corrupt.
func (v *Object) Marshal() []byte {
	d, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("Could not marshal: %+v", v))
	}
	return d
}
