// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

const orderProcessYaml = `
id: order-fulfilment
name: Order fulfilment
startEvents:
  - id: order-placed
    type: MESSAGE
    messageName: order-placed
activities:
  - id: reserve-stock
    type: TASK
    taskType: stock-service
    boundary:
      - id: stock-timeout
        type: TIMER
        interrupting: true
        duration: PT15M
        handler:
          id: cancel-order
          type: TASK
          taskType: cancel-service
  - id: ship-items
    type: CALL_ACTIVITY
    calledElement:
      processId: shipping
      bindingType: versionTag
      versionTag: stable
    ioMapping:
      inputs:
        - source: orderId
          target: shipmentRef
      outputs:
        - source: trackingId
          target: trackingId
    multiInstance:
      inputCollection: "=items"
      inputElement: item
events:
  - id: order-cancelled
    type: CONDITIONAL
    interrupting: true
    condition: "=cancelled = true"
    variableName: cancelled
    handler:
      id: notify-cancel
      type: TASK
      taskType: notify-service
`

func TestParseYAMLBuildsCompleteModel(t *testing.T) {
	// when
	process, err := ParseYAML([]byte(orderProcessYaml))
	assert.NoError(t, err)

	// then
	assert.Equal(t, "order-fulfilment", process.Id)
	assert.True(t, process.HasConditionalEvents)

	assert.Len(t, process.StartEvents, 1)
	assert.Equal(t, EventTypeMessage, process.StartEvents[0].Type)
	assert.Equal(t, "order-placed", process.StartEvents[0].MessageName)

	assert.Len(t, process.Activities, 2)
	reserve := process.Activities[0]
	assert.Equal(t, ElementTypeTask, reserve.Type)
	assert.Len(t, reserve.Boundary, 1)
	assert.Equal(t, EventTypeTimer, reserve.Boundary[0].Type)
	assert.Equal(t, "PT15M", reserve.Boundary[0].Duration)
	assert.Equal(t, "cancel-order", reserve.Boundary[0].Handler.Id)

	ship := process.Activities[1]
	assert.Equal(t, ElementTypeCallActivity, ship.Type)
	assert.Equal(t, BindingTypeVersionTag, ship.CalledElement.BindingType)
	assert.Equal(t, "stable", ship.CalledElement.VersionTag)
	assert.Equal(t, []IoStep{{Source: "orderId", Target: "shipmentRef"}}, ship.IoMapping.Inputs)
	assert.Equal(t, "=items", ship.MultiInstance.InputCollectionExpression)
	assert.Equal(t, "item", ship.MultiInstance.InputElementName)

	assert.Len(t, process.Events, 1)
	assert.Equal(t, "cancelled", process.Events[0].VariableName)
	assert.True(t, process.Events[0].Interrupting)
}

func TestParseYAMLRejectsInvalidDocument(t *testing.T) {
	// given an event definition without a handler
	doc := `
id: broken
activities:
  - id: t-1
    type: TASK
    boundary:
      - id: no-handler
        type: CONDITIONAL
        condition: "=true"
`
	// when
	_, err := ParseYAML([]byte(doc))

	// then
	var validationErr *ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestParseYAMLRejectsMalformedYaml(t *testing.T) {
	_, err := ParseYAML([]byte("id: [unclosed"))
	assert.Error(t, err)
}
