package registry

func required(name string, t ParamType) Param {
	return Param{Name: name, Type: t, Required: true}
}

func optional(name string, t ParamType, def interface{}) Param {
	return Param{Name: name, Type: t, Default: def}
}

func nullable(name string, t ParamType) Param {
	return Param{Name: name, Type: t, Nullable: true}
}

func listOf(name string, items ParamType, req bool) Param {
	p := Param{Name: name, Type: TypeArray, Items: items, Required: req}
	if !req {
		p.Nullable = true
	}
	return p
}

func query(name, description string, params ...Param) Entry {
	return Entry{Name: name, Description: description, Kind: KindQuery, Params: params}
}

func mutation(name, description string, params ...Param) Entry {
	return Entry{Name: name, Description: description, Kind: KindMutation, Params: params}
}

var (
	trackIndex  = required("track_index", TypeInteger)
	clipIndex   = required("clip_index", TypeInteger)
	deviceIndex = required("device_index", TypeInteger)
	sceneIndex  = required("scene_index", TypeInteger)
	switchOn    = required("on", TypeBoolean)
	beats       = required("beats", TypeNumber)
	viewName    = optional("view_name", TypeString, "")
)

// Commands returns the host command table. Each call returns a fresh slice.
func Commands() []Entry {
	return []Entry{
		// Session and application state.
		query("get_session_info", "Tempo, signature, track counts and master track of the current set."),
		query("get_application_info", "Host application name, version and view state."),
		query("get_application_view_state", "Visibility of the main application views."),
		query("get_application_process_usage", "Host CPU and process usage."),
		query("get_application_version", "Host application version numbers."),
		query("get_application_document", "Current document (set) information."),
		query("list_control_surfaces", "Installed control surfaces."),
		mutation("press_current_dialog_button", "Press a button of the currently open dialog.",
			required("index", TypeInteger)),
		mutation("show_message", "Show a message in the host status bar.",
			required("message", TypeString)),

		// Application views.
		query("application_view_available_main_views", "Names of the main views."),
		mutation("application_view_focus_view", "Focus a view.", viewName),
		mutation("application_view_hide_view", "Hide a view.", viewName),
		query("application_view_is_view_visible", "Whether a view is visible.",
			required("view_name", TypeString)),
		mutation("application_view_scroll_view", "Scroll a view.",
			required("direction", TypeInteger), viewName, optional("modifier_pressed", TypeBoolean, false)),
		mutation("application_view_show_view", "Show a view.", viewName),
		mutation("application_view_toggle_browse", "Toggle the browser into hot-swap mode."),
		mutation("application_view_zoom_view", "Zoom a view.",
			required("direction", TypeInteger), viewName, optional("modifier_pressed", TypeBoolean, false)),

		// Tracks.
		query("get_track_info", "Name, type, mixer state, clip slots and devices of a track.", trackIndex),
		mutation("create_midi_track", "Create a MIDI track; -1 appends.", optional("index", TypeInteger, -1)),
		mutation("create_audio_track", "Create an audio track; -1 appends.", optional("index", TypeInteger, -1)),
		mutation("set_track_name", "Rename a track.", trackIndex, required("name", TypeString)),
		query("list_return_tracks", "Return tracks with their mixer state."),
		mutation("set_send_level", "Set a track's send level.",
			trackIndex, required("send_index", TypeInteger), required("level", TypeNumber)),

		// Clips.
		mutation("create_clip", "Create a MIDI clip in a clip slot.",
			trackIndex, clipIndex, optional("length", TypeNumber, 4.0)),
		mutation("add_notes_to_clip", "Add MIDI notes to a clip.",
			trackIndex, clipIndex, listOf("notes", TypeObject, true)),
		mutation("set_clip_name", "Rename a clip.", trackIndex, clipIndex, required("name", TypeString)),
		query("get_clip_info", "Clip details.", trackIndex, clipIndex),
		mutation("fire_clip", "Launch a clip.", trackIndex, clipIndex),
		mutation("stop_clip", "Stop a clip.", trackIndex, clipIndex),
		mutation("stop_all_clips", "Stop all clips.", optional("quantized", TypeInteger, 1)),
		mutation("write_automation", "Write parameter automation points into a clip envelope.",
			trackIndex, clipIndex, deviceIndex, listOf("points", TypeObject, true),
			nullable("parameter_index", TypeInteger), nullable("parameter_name", TypeString)),

		// Scenes.
		query("list_scenes", "Scenes with names and tempo."),
		mutation("fire_scene", "Launch a scene.", sceneIndex),
		mutation("create_scene", "Create a scene; -1 appends.", optional("scene_index", TypeInteger, -1)),
		mutation("rename_scene", "Rename a scene.", sceneIndex, required("name", TypeString)),

		// Song settings.
		mutation("set_tempo", "Set the song tempo in BPM.", required("tempo", TypeNumber)),
		mutation("set_signature_numerator", "Set the time signature numerator.",
			required("signature_numerator", TypeInteger)),
		mutation("set_signature_denominator", "Set the time signature denominator.",
			required("signature_denominator", TypeInteger)),
		mutation("set_metronome", "Enable or disable the metronome.", switchOn),
		mutation("set_clip_trigger_quantization", "Set global clip launch quantization.",
			required("quant", TypeInteger)),

		// Transport.
		mutation("start_playback", "Start playback."),
		mutation("stop_playback", "Stop playback."),
		mutation("continue_playing", "Continue playback from the current position."),
		mutation("play_selection", "Play the arrangement selection."),
		mutation("set_record_mode", "Enable or disable arrangement record.", switchOn),
		mutation("set_arrangement_overdub", "Enable or disable arrangement overdub.", switchOn),
		mutation("set_session_automation_record", "Enable or disable session automation record.", switchOn),
		mutation("trigger_session_record", "Trigger session record, optionally for a fixed length.",
			nullable("record_length", TypeNumber)),
		mutation("re_enable_automation", "Re-enable overridden automation."),
		mutation("set_back_to_arranger", "Set the back-to-arranger state.", switchOn),
		query("get_current_song_time_beats", "Current song position in beats."),
		mutation("set_current_song_time_beats", "Move the song position to a beat.", beats),
		mutation("set_song_position", "Move the song position.", required("time", TypeNumber)),
		mutation("set_start_time", "Set the playback start time.", beats),
		mutation("jump_by", "Move the song position by a number of beats.", beats),
		mutation("jump_by_beats", "Move the song position by a number of beats.", beats),
		mutation("set_loop", "Enable or disable the arrangement loop.", switchOn),
		mutation("set_loop_region", "Set the arrangement loop region.",
			required("start", TypeNumber), required("length", TypeNumber)),

		// Cue points.
		query("list_locators", "Cue points (locators) in the arrangement."),
		mutation("create_locator", "Create a cue point at a time.", required("time", TypeNumber)),
		mutation("jump_to_next_cue", "Jump to the next cue point."),
		mutation("jump_to_prev_cue", "Jump to the previous cue point."),
		mutation("jump_to_cue", "Jump to a cue point by index.", required("index", TypeInteger)),
		mutation("toggle_cue_at_current", "Set or delete a cue point at the current position."),
		mutation("rename_cue_point", "Rename a cue point.",
			required("cue_index", TypeInteger), required("name", TypeString)),

		// Arrangement.
		mutation("duplicate_track_clip_to_arrangement", "Copy a session clip into the arrangement.",
			trackIndex, clipIndex, required("start_beats", TypeNumber), required("length_beats", TypeNumber),
			nullable("loop", TypeBoolean)),
		mutation("clear_arrangement", "Delete arrangement clips, optionally only on some tracks.",
			listOf("track_indices", TypeInteger, false)),

		// Devices.
		query("get_device_details", "Device class, type and parameters.", trackIndex, deviceIndex),
		query("get_device_parameters", "Parameters of a device.", trackIndex, deviceIndex),
		query("find_device_by_name", "Find a device on a track by name.",
			trackIndex, required("device_name", TypeString)),
		mutation("set_device_parameter", "Set a device parameter by index or name.",
			trackIndex, deviceIndex, required("value", TypeNumber),
			nullable("parameter_index", TypeInteger), nullable("parameter_name", TypeString)),
		mutation("delete_device", "Delete a device from a track.", trackIndex, deviceIndex),

		// Browser.
		query("get_browser_tree", "Browser category tree.",
			optional("category_type", TypeString, "all"), optional("max_depth", TypeInteger, 2)),
		query("get_browser_items_at_path", "Browser items at a path such as instruments/Drum Rack.",
			required("path", TypeString)),
		query("get_browser_item", "A browser item by URI or path.",
			nullable("uri", TypeString), nullable("path", TypeString)),
		query("get_browser_categories", "Browser categories.", optional("category_type", TypeString, "all")),
		query("get_browser_items", "Browser items under a path filtered by type.",
			optional("path", TypeString, ""), optional("item_type", TypeString, "all")),
		mutation("load_browser_item", "Load an instrument, effect or kit onto a track by browser URI.",
			trackIndex, required("item_uri", TypeString)),
	}
}
